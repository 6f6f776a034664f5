package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/contextcompass/internal/clip"
	"github.com/boshu2/contextcompass/internal/formatter"
	"github.com/boshu2/contextcompass/internal/handoff"
	"github.com/boshu2/contextcompass/internal/usage"
)

var (
	handoffNotesFile    string
	handoffFrom         string
	handoffConversation string
	handoffLeft         string
	handoffWindow       int
	handoffModel        string
	handoffCopy         bool
	handoffResume       bool
)

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Turn session notes into a handoff document",
	Long: `Parse free-form notes into sections and render a markdown handoff for
the next session.

Lines are sorted by keyword (first match wins, case-insensitive):
  task: objective: goal:              Current Task
  progress: done: completed:          Progress
  file: files: modified:              Key Files
  decision: decided: choice:          Decisions Made
  next: todo: next step               Next Steps
Lines without a keyword continue the current section.

Notes are read from --notes-file, or stdin when it is not set. --from
re-renders a previous handoff with fresh usage figures. --resume prints the
short resume prompt for --conversation instead.

Examples:
  compass handoff --notes-file notes.txt --left 40,000 --copy
  echo "Task: ship it" | compass handoff --conversation abc-123
  compass handoff --resume --conversation abc-123`,
	Args: cobra.NoArgs,
	RunE: runHandoff,
}

func init() {
	rootCmd.AddCommand(handoffCmd)
	handoffCmd.Flags().StringVarP(&handoffNotesFile, "notes-file", "f", "", "Notes file (\"-\" or unset reads stdin)")
	handoffCmd.Flags().StringVar(&handoffFrom, "from", "", "Re-render a previous handoff document")
	handoffCmd.Flags().StringVar(&handoffConversation, "conversation", "", "Conversation ID")
	handoffCmd.Flags().StringVar(&handoffLeft, "left", "", "Tokens left in the context window")
	handoffCmd.Flags().IntVar(&handoffWindow, "window", 0, "Context window size in tokens")
	handoffCmd.Flags().StringVar(&handoffModel, "model", "", "Model preset name (sets the window)")
	handoffCmd.Flags().BoolVar(&handoffCopy, "copy", false, "Copy the result to the clipboard")
	handoffCmd.Flags().BoolVar(&handoffResume, "resume", false, "Print the resume prompt for --conversation")
}

type handoffOutput struct {
	ConversationID string       `json:"conversation_id"`
	Usage          usage.Usage  `json:"usage"`
	Sections       handoff.Note `json:"sections"`
	Markdown       string       `json:"markdown"`
	Copied         bool         `json:"copied"`
}

func runHandoff(cmd *cobra.Command, args []string) error {
	cfg, err := loadGaugeConfig(handoffWindow, handoffModel)
	if err != nil {
		return err
	}

	if handoffResume {
		id := strings.TrimSpace(handoffConversation)
		if id == "" {
			return errors.New("--resume needs --conversation")
		}
		prompt := handoff.ResumePrompt(handoff.DefaultResumeInfo(id, filepath.Dir(cfg.Paths.TranscriptsDir)))
		return emitText(cmd.OutOrStdout(), prompt, handoffCopy)
	}

	note, err := readNote(cmd.InOrStdin())
	if err != nil {
		return err
	}

	u := usage.ComputeRaw(handoffLeft, cfg.Window())
	doc, err := handoff.RenderString(note, handoff.Meta{
		ConversationID: handoffConversation,
		GeneratedAt:    time.Now(),
		TokensUsed:     u.TokensUsed,
		ContextWindow:  u.ContextWindow,
	})
	if err != nil {
		return err
	}

	if cfg.Output == "json" {
		out := handoffOutput{
			ConversationID: strings.TrimSpace(handoffConversation),
			Usage:          u,
			Sections:       note,
			Markdown:       doc,
		}
		if handoffCopy {
			out.Copied = clip.Copy(doc, logger)
		}
		return formatter.WriteJSON(cmd.OutOrStdout(), out)
	}
	return emitText(cmd.OutOrStdout(), doc, handoffCopy)
}

// readNote parses notes from --notes-file or stdin, or extracts the sections
// of a previous handoff when --from is set.
func readNote(stdin io.Reader) (handoff.Note, error) {
	if handoffFrom != "" {
		data, err := os.ReadFile(handoffFrom)
		if err != nil {
			return handoff.Note{}, fmt.Errorf("read handoff: %w", err)
		}
		return handoff.Extract(string(data)), nil
	}

	var data []byte
	var err error
	if handoffNotesFile == "" || handoffNotesFile == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(handoffNotesFile)
	}
	if err != nil {
		return handoff.Note{}, fmt.Errorf("read notes: %w", err)
	}
	return handoff.Parse(strings.TrimSpace(string(data))), nil
}

func emitText(w io.Writer, text string, copyIt bool) error {
	if _, err := fmt.Fprintln(w, text); err != nil {
		return err
	}
	if copyIt && clip.Copy(text, logger) {
		logger.Info("copied to clipboard")
	}
	return nil
}
