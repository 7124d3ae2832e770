package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/caseflow/internal/modules/documents"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents and queue them for processing",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpload,
}

var statusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show a document, or list your documents",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <doc-id>",
	Short: "Send a processed, degraded or paused document back through the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentAction(documents.ActionReprocess, "Queued %s for reprocessing (%v)\n"),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <doc-id>",
	Short: "Delete a document and everything derived from it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentAction(documents.ActionDelete, "Deleted %s (deleted=%v)\n"),
}

var (
	uploadProviderFileID string
	uploadMIMEType       string
	statusStage          string
)

func init() {
	uploadCmd.Flags().StringVar(&uploadProviderFileID, "provider-file-id", "",
		"ID of the file in your cloud storage; enables provider export")
	uploadCmd.Flags().StringVar(&uploadMIMEType, "mime-type", "", "declared MIME type (default: detected)")
	statusCmd.Flags().StringVar(&statusStage, "stage", "", "only list documents at this stage")

	rootCmd.AddCommand(uploadCmd, statusCmd, reprocessCmd, deleteCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	user, err := requireUser()
	if err != nil {
		return err
	}
	if uploadProviderFileID != "" && len(args) > 1 {
		return fmt.Errorf("--provider-file-id applies to a single file")
	}

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		params := map[string]any{
			documents.ParamName:     filepath.Base(path),
			documents.ParamContent:  base64.StdEncoding.EncodeToString(data),
			documents.ParamEncoding: "base64",
		}
		if uploadMIMEType != "" {
			params[documents.ParamMIMEType] = uploadMIMEType
		}
		if uploadProviderFileID != "" {
			params[documents.ParamProviderFileID] = uploadProviderFileID
		}

		out, err := invoke(cmd, documents.Name, documents.ActionUpload, user, params)
		if err != nil {
			return fmt.Errorf("uploading %s: %w", path, err)
		}
		cmd.Printf("%s  %v  %s\n", out[documents.ParamDocumentID], out[documents.ParamStage], filepath.Base(path))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	user, err := requireUser()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		params := map[string]any{}
		if statusStage != "" {
			params[documents.ParamStage] = statusStage
		}
		out, err := invoke(cmd, documents.Name, documents.ActionList, user, params)
		if err != nil {
			return err
		}
		docs, _ := out["documents"].([]map[string]any)
		if len(docs) == 0 {
			cmd.Println("No documents")
			return nil
		}
		for _, d := range docs {
			cmd.Printf("  %v  %s %v\n", d["id"], stageLabel(d["stage"]), d["name"])
		}
		cmd.Printf("\nTotal: %v documents\n", out["count"])
		return nil
	}

	out, err := invoke(cmd, documents.Name, documents.ActionStatus, user,
		map[string]any{documents.ParamDocumentID: args[0]})
	if err != nil {
		return err
	}
	doc, _ := out["document"].(map[string]any)
	printDocument(cmd, doc)
	return nil
}

var documentLabels = []struct{ key, label string }{
	{"name", "Name"},
	{"mime_type", "Type"},
	{"stage", "Stage"},
	{"category", "Category"},
	{"confidence", "Confidence"},
	{"extraction_path", "Extracted via"},
	{"retry_count", "Retries"},
	{"paused_reason", "Paused"},
	{"failure_reason", "Failure"},
	{"provider_file_id", "Provider file"},
	{"created_at", "Created"},
	{"updated_at", "Updated"},
}

func printDocument(cmd *cobra.Command, doc map[string]any) {
	cmd.Printf("%s\n\n", styleHeading.Render(fmt.Sprintf("Document: %v", doc["id"])))
	seen := map[string]bool{"id": true}
	for _, l := range documentLabels {
		seen[l.key] = true
		v, ok := doc[l.key]
		switch {
		case !ok:
		case l.key == "stage":
			cmd.Printf("  %-14s %s\n", l.label+":", stageLabel(v))
		default:
			cmd.Printf("  %-14s %v\n", l.label+":", v)
		}
	}
	var rest []string
	for k := range doc {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		cmd.Printf("  %-14s %v\n", k+":", doc[k])
	}
}

func runDocumentAction(action, format string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}
		out, err := invoke(cmd, documents.Name, action, user, map[string]any{documents.ParamDocumentID: args[0]})
		if err != nil {
			return err
		}
		detail := out[documents.ParamStage]
		if detail == nil {
			detail = out["deleted"]
		}
		cmd.Printf(format, args[0], detail)
		return nil
	}
}
