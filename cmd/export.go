package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iksnae/cognitus-chat/internal"
	"github.com/iksnae/cognitus-chat/internal/export"
	"github.com/spf13/cobra"
)

var (
	format       string
	outputDir    string
	exportCached bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [chat-id...]",
	Short: "Export conversations to files",
	Long: `Export conversations to various formats (jsonl, md, yaml, json).

Without chat ids every conversation is exported. Histories are fetched from
the server, or read from the local history cache with --cached.
Use 'cognitus chats list' to see available ids.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// validate the format before touching the network
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		a := newApp(cfg)
		defer a.Close()
		ctx := cmd.Context()

		ids := args
		if len(ids) == 0 {
			ids, err = allChatIDs(cmd, a)
			if err != nil {
				return err
			}
		}

		var chats []*internal.Chat
		err = internal.ShowProgress(ctx, fmt.Sprintf("Loading %d conversation(s)", len(ids)), func() error {
			for _, id := range ids {
				chat, err := a.loadChat(ctx, id, exportCached)
				if err != nil {
					return err
				}
				chats = append(chats, chat)
			}
			return nil
		})
		if err != nil {
			return err
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		exported := 0
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d conversation(s) to %s", len(chats), outputDir), func() error {
			for _, chat := range chats {
				path := filepath.Join(outputDir, fmt.Sprintf("chat_%s.%s", safeFilename(chat.ID), exporter.Extension()))
				if err := exportChat(exporter, chat, path); err != nil {
					internal.LogError("%v", err)
					continue
				}
				exported++
			}
			return nil
		})
		if err != nil {
			return err
		}

		if exported < len(chats) {
			return fmt.Errorf("exported %d of %d conversation(s)", exported, len(chats))
		}
		internal.PrintSuccess(fmt.Sprintf("Export complete: %d conversation(s) exported to %s", exported, outputDir))
		return nil
	},
}

func allChatIDs(cmd *cobra.Command, a *app) ([]string, error) {
	var ids []string
	if exportCached {
		if a.cache == nil {
			return nil, fmt.Errorf("history cache is disabled")
		}
		summaries, err := a.cache.ListChats(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("failed to read history cache: %w", err)
		}
		for _, s := range summaries {
			ids = append(ids, s.ID)
		}
		return ids, nil
	}

	chats, err := a.client.ListChats(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func exportChat(exporter export.Exporter, chat *internal.Chat, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}

	if err := exporter.Export(chat, file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}

	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	return nil
}

// safeFilename keeps ids usable as file name components
func safeFilename(id string) string {
	out := []rune(id)
	for i, r := range out {
		if r == '/' || r == '\\' || r == ':' || r == os.PathSeparator {
			out[i] = '_'
		}
	}
	return string(out)
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().BoolVar(&exportCached, "cached", false, "Read conversations from the local history cache")
}
