// analyze-filenames reports how well the filename pattern rules cover a
// directory of books: overall coverage plus per-rule match counts.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfmark/shelfmark/pkg/namepattern"
)

func main() {
	log := logger.New()

	var opts struct {
		ShowUnmatched bool `short:"u" long:"show-unmatched" description:"Print the filenames no rule matched"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/analyze-filenames <path/to/directory>")
		os.Exit(1)
	}

	filenames := make([]string, 0)
	err = filepath.WalkDir(args[0], func(path string, info fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			filenames = append(filenames, info.Name())
		}
		return nil
	})
	if err != nil {
		log.Err(err).Fatal("walk error")
	}

	report := namepattern.Analyze(filenames)

	fmt.Printf("Files:    %d\n", report.Total)
	fmt.Printf("Matched:  %d\n", report.Matched)
	fmt.Printf("Coverage: %.1f%%\n\n", report.Coverage()*100)

	names := namepattern.RuleNames()
	sort.SliceStable(names, func(i, j int) bool {
		return report.ByRule[names[i]] > report.ByRule[names[j]]
	})
	for _, name := range names {
		fmt.Printf("%-16s %d\n", name, report.ByRule[name])
	}

	if opts.ShowUnmatched {
		fmt.Println()
		for _, filename := range filenames {
			if _, ok := namepattern.MatchFilename(filename); !ok {
				fmt.Println(filename)
			}
		}
	}
}
