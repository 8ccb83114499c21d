// Command provctl is a CLI client for provenanced: it issues one-shot
// queries and actions over the daemon's Unix socket.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomcore/provenance/internal/inspector"
	"github.com/loomcore/provenance/internal/protocol"
	"github.com/loomcore/provenance/internal/provclient"
)

const defaultSocket = "/run/provenanced/provenanced.sock"
const requestTimeout = 5 * time.Second

var socketPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "provctl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "provctl",
		Short: "Inspect and control the provenance capture daemon",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", defaultSocket, "path to provenanced's Unix socket")

	root.AddCommand(
		newProvenanceCmd(),
		newWorkBlocksCmd(),
		newMilestonesCmd(),
		newSessionsCmd(),
		newBlockCmd(),
		newLinkCmd(),
		newSourceCmd(),
		newConfigCmd(),
		newClearCmd(),
		newWatchCmd(),
	)
	return root
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live-view committed work blocks and source links",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := inspector.Dial(socketPath)
			if err != nil {
				return err
			}
			defer c.Close()
			return inspector.Run(c, inspector.TerminalTheme())
		},
	}
}

func withClient(fn func(ctx context.Context, c *provclient.Client) error) error {
	c, err := provclient.Dial(socketPath)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return fn(ctx, c)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newProvenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provenance <doc-id>",
		Short: "Show source links for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				var resp protocol.QueryProvenanceResp
				if err := c.Request(ctx, protocol.TypeQueryProvenance, &protocol.QueryProvenanceReq{DocID: args[0]}, &resp); err != nil {
					return err
				}
				return printJSON(resp.Links)
			})
		},
	}
}

func newWorkBlocksCmd() *cobra.Command {
	var limit int
	var contextType, contextID string

	cmd := &cobra.Command{
		Use:   "work-blocks",
		Short: "List recent work blocks, or those for a specific document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				if contextID != "" {
					var resp protocol.QueryWorkBlocksForDocResp
					req := &protocol.QueryWorkBlocksForDocReq{ContextType: contextType, ContextID: contextID, Limit: limit}
					if err := c.Request(ctx, protocol.TypeQueryWorkBlocksForDoc, req, &resp); err != nil {
						return err
					}
					return printJSON(resp.Blocks)
				}
				var resp protocol.QueryRecentWorkBlocksResp
				if err := c.Request(ctx, protocol.TypeQueryRecentWorkBlocks, &protocol.QueryRecentWorkBlocksReq{Limit: limit}, &resp); err != nil {
					return err
				}
				return printJSON(resp.Blocks)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to return")
	cmd.Flags().StringVar(&contextType, "context-type", "", "filter by context type (document, task, browser, manual, mixed)")
	cmd.Flags().StringVar(&contextID, "context-id", "", "filter by context id")
	return cmd
}

func newMilestonesCmd() *cobra.Command {
	var contextType, contextID string

	cmd := &cobra.Command{
		Use:   "milestones",
		Short: "List milestones recorded for a context",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				var resp protocol.QueryMilestonesResp
				req := &protocol.QueryMilestonesReq{ContextType: contextType, ContextID: contextID}
				if err := c.Request(ctx, protocol.TypeQueryMilestones, req, &resp); err != nil {
					return err
				}
				return printJSON(resp.Milestones)
			})
		},
	}
	cmd.Flags().StringVar(&contextType, "context-type", "", "context type")
	cmd.Flags().StringVar(&contextID, "context-id", "", "context id")
	return cmd
}

func newSessionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				var resp protocol.QueryRecentSessionsResp
				if err := c.Request(ctx, protocol.TypeQueryRecentSessions, &protocol.QueryRecentSessionsReq{Limit: limit}, &resp); err != nil {
					return err
				}
				return printJSON(resp.Sessions)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to return")
	return cmd
}

func newBlockCmd() *cobra.Command {
	block := &cobra.Command{
		Use:   "block",
		Short: "Create or annotate work blocks",
	}
	block.AddCommand(newBlockCreateCmd(), newBlockAnnotateCmd())
	return block
}

func newBlockCreateCmd() *cobra.Command {
	var startedAt, endedAt int64
	var summary, notes, contextType, contextTitle string
	var tags []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a manually-described work block",
		RunE: func(cmd *cobra.Command, args []string) error {
			if endedAt == 0 {
				endedAt = time.Now().UnixMilli()
			}
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				req := &protocol.CreateManualBlockReq{
					StartedAt:    startedAt,
					EndedAt:      endedAt,
					UserSummary:  summary,
					Notes:        notes,
					Tags:         tags,
					ContextType:  contextType,
					ContextTitle: contextTitle,
				}
				var resp protocol.CreateManualBlockResp
				if err := c.Request(ctx, protocol.TypeActionCreateManualBlock, req, &resp); err != nil {
					return err
				}
				return printJSON(resp.Block)
			})
		},
	}
	cmd.Flags().Int64Var(&startedAt, "started-at", 0, "start time, unix millis (required)")
	cmd.Flags().Int64Var(&endedAt, "ended-at", 0, "end time, unix millis (default now)")
	cmd.Flags().StringVar(&summary, "summary", "", "user-authored summary")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&contextType, "context-type", "", "context type")
	cmd.Flags().StringVar(&contextTitle, "context-title", "", "context title")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	cmd.MarkFlagRequired("started-at")
	return cmd
}

func newBlockAnnotateCmd() *cobra.Command {
	var id, summary, notes string
	var pinned bool
	var tags []string

	cmd := &cobra.Command{
		Use:   "annotate <block-id>",
		Short: "Update a work block's summary, notes, tags, or pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id = args[0]
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				req := &protocol.AnnotateBlockReq{ID: id, UserSummary: summary, Notes: notes, Tags: tags, IsPinned: pinned}
				return c.Request(ctx, protocol.TypeActionAnnotateBlock, req, nil)
			})
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "", "user-authored summary")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().BoolVar(&pinned, "pinned", false, "pin the block against retention pruning")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	return cmd
}

func newLinkCmd() *cobra.Command {
	link := &cobra.Command{
		Use:   "link",
		Short: "Create source links",
	}
	link.AddCommand(newLinkCreateCmd())
	return link
}

func newLinkCreateCmd() *cobra.Command {
	var docID, sectionPath, content string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Link the currently active sources to a document section",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				req := &protocol.CreateSourceLinkReq{DocID: docID, SectionPath: sectionPath, Content: content}
				var resp protocol.CreateSourceLinkResp
				if err := c.Request(ctx, protocol.TypeActionCreateSourceLink, req, &resp); err != nil {
					return err
				}
				return printJSON(resp.Link)
			})
		},
	}
	cmd.Flags().StringVar(&docID, "doc-id", "", "document identifier (required)")
	cmd.Flags().StringVar(&sectionPath, "section", "", "section path within the document")
	cmd.Flags().StringVar(&content, "content", "", "committed content, hashed for the content-addressed store")
	cmd.MarkFlagRequired("doc-id")
	return cmd
}

func newSourceCmd() *cobra.Command {
	source := &cobra.Command{
		Use:   "source",
		Short: "Activate or deactivate provenance sources",
	}
	source.AddCommand(newSourceActivateCmd(), newSourceDeactivateCmd())
	return source
}

func newSourceActivateCmd() *cobra.Command {
	var sourceType, title string

	cmd := &cobra.Command{
		Use:   "activate <source-id>",
		Short: "Mark a source (webpage, document, AI exchange, ...) as active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				req := &protocol.ActivateSourceReq{SourceType: sourceType, SourceID: args[0], Title: title}
				return c.Request(ctx, protocol.TypeActionActivateSource, req, nil)
			})
		},
	}
	cmd.Flags().StringVar(&sourceType, "type", "", "source type (webpage, document, clipboard, ai_exchange, search)")
	cmd.Flags().StringVar(&title, "title", "", "display title")
	cmd.MarkFlagRequired("type")
	return cmd
}

func newSourceDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <source-id>",
		Short: "Remove a source from active tracking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				return c.Request(ctx, protocol.TypeActionDeactivateSource, &protocol.DeactivateSourceReq{SourceID: args[0]}, nil)
			})
		},
	}
}

func newConfigCmd() *cobra.Command {
	config := &cobra.Command{
		Use:   "config",
		Short: "Adjust dynamic configuration",
	}
	config.AddCommand(newConfigSetCmd())
	return config
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a dynamic configuration key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				return c.Request(ctx, protocol.TypeActionSetConfig, &protocol.SetConfigReq{Key: args[0], Value: args[1]}, nil)
			})
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Wipe all buffered and stored captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *provclient.Client) error {
				return c.Request(ctx, protocol.TypeActionClearCaptures, nil, nil)
			})
		},
	}
}
