package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/classvoice/internal/domain/emotion"
)

var errNoScores = errors.New("no scores given")

func runClassifyCmd(cmd *cobra.Command, args []string) error {
	raw, err := readScores(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return errNoScores
	}

	var scores emotion.Scores
	if err := json.Unmarshal(raw, &scores); err != nil {
		return fmt.Errorf("parse scores: %w", err)
	}
	if err := scores.Validate(); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(emotion.Classify(scores))
}

func readScores(cmd *cobra.Command, args []string) ([]byte, error) {
	switch {
	case len(args) == 1:
		return []byte(args[0]), nil
	case classifyFile != "":
		b, err := os.ReadFile(classifyFile)
		if err != nil {
			return nil, fmt.Errorf("read scores: %w", err)
		}
		return b, nil
	default:
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read scores: %w", err)
		}
		return b, nil
	}
}
