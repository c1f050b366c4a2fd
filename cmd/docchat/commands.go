package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload and index a document (.pdf, .docx, .html)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postFile("/upload-doc", args[0])
		if err != nil {
			return err
		}

		var result struct {
			Message string `json:"message"`
			FileID  int64  `json:"file_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Indexed %s as document %d", args[0], result.FileID)
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the uploaded documents",
	Long: `Ask a question about the uploaded documents.

The answer is grounded in the most relevant document chunks. Pass --session
with the id printed by a previous call to continue that conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := ""
		for i, a := range args {
			if i > 0 {
				question += " "
			}
			question += a
		}
		sessionID, _ := cmd.Flags().GetString("session")
		model, _ := cmd.Flags().GetString("model")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]string{"question": question}
		if sessionID != "" {
			req["session_id"] = sessionID
		}
		if model != "" {
			req["model"] = model
		}

		resp, err := client.postJSON("/chat", req)
		if err != nil {
			return err
		}

		var result struct {
			Answer    string `json:"answer"`
			SessionID string `json:"session_id"`
			Model     string `json:"model"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		printSessionFooter(result.SessionID, result.Model)
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "session id to continue a conversation")
	askCmd.Flags().String("model", "", "chat model to use (default: first configured)")
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage uploaded documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/list-docs")
		if err != nil {
			return err
		}

		var docs []struct {
			ID         int64  `json:"id"`
			Filename   string `json:"filename"`
			UploadedAt string `json:"upload_timestamp"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents uploaded.")
			return nil
		}
		for _, d := range docs {
			fmt.Println(formatDocRow(d.ID, d.UploadedAt, d.Filename))
		}
		return nil
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its index entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid document id %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postJSON("/delete-doc", map[string]int64{"file_id": id})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted document %d", id)
		return nil
	},
}

func init() {
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsDeleteCmd)
}
