/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: analyze.go
Description: Analyze command. Diffs an offline list of URLs against the vendor's recorded
traffic without persisting anything.
*/

package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// ReadURLList reads one URL per line; blank lines and # comments are skipped
func ReadURLList(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read url list: %w", err)
	}
	return urls, nil
}

// RunAnalyze executes `mirror analyze <vendor> <urls-file|->`
func RunAnalyze(cmd *cobra.Command, args []string) error {
	vendor, source := args[0], args[1]

	var in io.Reader = cmd.InOrStdin()
	if source != "-" {
		f, err := os.Open(source)
		if err != nil {
			return fmt.Errorf("failed to open url list: %w", err)
		}
		defer f.Close()
		in = f
	}
	urls, err := ReadURLList(in)
	if err != nil {
		return err
	}

	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	diff, err := s.synthesizer.Analyze(ctx, vendor, urls)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	status := cmd.ErrOrStderr()
	fmt.Fprintf(status, "📊 %d urls: %d static, %d dynamic, %d new\n", len(urls),
		len(diff.MatchedStatic), len(diff.MatchedDynamic), len(diff.New))
	return writeJSON(cmd.OutOrStdout(), diff)
}
