package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sealbox/sealbox/pkg/schema"
)

// --- Tool definitions ---

func saveSecretTool() mcp.Tool {
	return mcp.NewTool("sealbox.save_secret",
		mcp.WithDescription("Save a secret record, overwriting any prior record with the same id"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Unique record id")),
		mcp.WithString("service_id", mcp.Required(), mcp.Description("Service the credential belongs to")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Human-readable credential name")),
		mcp.WithString("type", mcp.Required(), mcp.Enum("api_key", "oauth"), mcp.Description("Credential type")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Secret value (api key or access token)")),
		mcp.WithString("refresh_token", mcp.Description("OAuth refresh token, if any")),
		mcp.WithString("expires_at", mcp.Description("Credential expiry, RFC 3339")),
		mcp.WithObject("metadata", mcp.Description("Non-secret key/value annotations")),
	)
}

func getSecretTool() mcp.Tool {
	return mcp.NewTool("sealbox.get_secret",
		mcp.WithDescription("Get a secret record including its decrypted value"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	)
}

func listSecretsTool() mcp.Tool {
	return mcp.NewTool("sealbox.list_secrets",
		mcp.WithDescription("List secret metadata without decrypting any values"),
	)
}

func deleteSecretTool() mcp.Tool {
	return mcp.NewTool("sealbox.delete_secret",
		mcp.WithDescription("Delete a secret record; deleting an absent id is not an error"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	)
}

func exportVaultTool() mcp.Tool {
	return mcp.NewTool("sealbox.export_vault",
		mcp.WithDescription("Export the full credential set as a portable bundle encrypted under a password"),
		mcp.WithString("password", mcp.Required(), mcp.Description("Password protecting the export")),
	)
}

func importVaultTool() mcp.Tool {
	return mcp.NewTool("sealbox.import_vault",
		mcp.WithDescription("Import a previously exported bundle"),
		mcp.WithString("salt", mcp.Required(), mcp.Description("Bundle salt, base64")),
		mcp.WithString("encrypted_data", mcp.Required(), mcp.Description("Bundle ciphertext, base64")),
		mcp.WithNumber("version", mcp.Description("Bundle format version (default 1)")),
		mcp.WithString("password", mcp.Required(), mcp.Description("Password the bundle was exported with")),
	)
}

func startOAuthTool() mcp.Tool {
	return mcp.NewTool("sealbox.start_oauth",
		mcp.WithDescription("Start a local OAuth authorization-code flow; poll with sealbox.poll_oauth"),
		mcp.WithString("auth_url", mcp.Required(), mcp.Description("Provider authorization endpoint")),
		mcp.WithString("client_id", mcp.Required(), mcp.Description("OAuth client id")),
		mcp.WithArray("scopes", mcp.Description("Requested scopes")),
		mcp.WithBoolean("use_pkce", mcp.Description("Attach a PKCE S256 challenge (default false)")),
	)
}

func pollOAuthTool() mcp.Tool {
	return mcp.NewTool("sealbox.poll_oauth",
		mcp.WithDescription("Poll an OAuth session; a completed result is consumed by the first successful poll"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id from sealbox.start_oauth")),
	)
}

func submitJobTool() mcp.Tool {
	return mcp.NewTool("sealbox.submit_job",
		mcp.WithDescription("Submit a fire-and-forget automation job that retrieves a credential; poll with sealbox.poll_job"),
		mcp.WithString("service_name", mcp.Description("Service whose extension actions may be used")),
		mcp.WithString("action_name", mcp.Required(), mcp.Description("Builtin or service-extension action to run")),
		mcp.WithObject("params", mcp.Description("Action input params; ${{secrets.ID}} references are resolved")),
	)
}

func pollJobTool() mcp.Tool {
	return mcp.NewTool("sealbox.poll_job",
		mcp.WithDescription("Poll an automation job's status"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id from sealbox.submit_job")),
	)
}

// --- Handlers ---

func (s *SealboxServer) handleSaveSecret(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	rec := &schema.SecretRecord{
		ID:           id,
		ServiceID:    req.GetString("service_id", ""),
		Name:         req.GetString("name", ""),
		Type:         schema.SecretType(req.GetString("type", "")),
		Value:        req.GetString("value", ""),
		RefreshToken: req.GetString("refresh_token", ""),
	}
	if raw := req.GetString("expires_at", ""); raw != "" {
		t, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid expires_at: %v", perr)), nil
		}
		rec.ExpiresAt = &t
	}
	if meta := mcp.ParseStringMap(req, "metadata", nil); meta != nil {
		rec.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			rec.Metadata[k] = fmt.Sprintf("%v", v)
		}
	}

	if saveErr := s.vault.Save(ctx, rec); saveErr != nil {
		return toolError(saveErr), nil
	}
	return marshalResult(map[string]any{"success": true, "id": rec.ID})
}

func (s *SealboxServer) handleGetSecret(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	rec, getErr := s.vault.Get(ctx, id)
	if getErr != nil {
		return toolError(getErr), nil
	}
	return marshalResult(rec)
}

func (s *SealboxServer) handleListSecrets(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.vault.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(map[string]any{"secrets": metas})
}

func (s *SealboxServer) handleDeleteSecret(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	if delErr := s.vault.Delete(ctx, id); delErr != nil {
		return toolError(delErr), nil
	}
	return marshalResult(map[string]any{"success": true})
}

func (s *SealboxServer) handleExportVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	password, err := req.RequireString("password")
	if err != nil {
		return mcp.NewToolResultError("password is required"), nil
	}
	bundle, expErr := s.vault.Export(ctx, password)
	if expErr != nil {
		return toolError(expErr), nil
	}
	return marshalResult(map[string]any{
		"version":        bundle.Version,
		"salt":           base64.StdEncoding.EncodeToString(bundle.Salt),
		"encrypted_data": base64.StdEncoding.EncodeToString(bundle.EncryptedData),
	})
}

func (s *SealboxServer) handleImportVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	password, err := req.RequireString("password")
	if err != nil {
		return mcp.NewToolResultError("password is required"), nil
	}
	saltB64, err := req.RequireString("salt")
	if err != nil {
		return mcp.NewToolResultError("salt is required"), nil
	}
	dataB64, err := req.RequireString("encrypted_data")
	if err != nil {
		return mcp.NewToolResultError("encrypted_data is required"), nil
	}

	salt, decErr := base64.StdEncoding.DecodeString(saltB64)
	if decErr != nil {
		return mcp.NewToolResultError("salt is not valid base64"), nil
	}
	data, decErr := base64.StdEncoding.DecodeString(dataB64)
	if decErr != nil {
		return mcp.NewToolResultError("encrypted_data is not valid base64"), nil
	}

	version := req.GetInt("version", schema.ExportVersion)
	bundle := &schema.ExportBundle{Version: version, Salt: salt, EncryptedData: data}

	n, impErr := s.vault.Import(ctx, bundle, password)
	if impErr != nil {
		return toolError(impErr), nil
	}
	return marshalResult(map[string]any{"success": true, "imported": n})
}

func (s *SealboxServer) handleStartOAuth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	authURL, err := req.RequireString("auth_url")
	if err != nil {
		return mcp.NewToolResultError("auth_url is required"), nil
	}
	clientID, err := req.RequireString("client_id")
	if err != nil {
		return mcp.NewToolResultError("client_id is required"), nil
	}
	scopes := req.GetStringSlice("scopes", nil)
	usePKCE := req.GetBool("use_pkce", false)

	flow, startErr := s.coord.StartFlow(ctx, authURL, clientID, scopes, usePKCE)
	if startErr != nil {
		return toolError(startErr), nil
	}
	return marshalResult(flow)
}

func (s *SealboxServer) handlePollOAuth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	res, pollErr := s.coord.PollResult(ctx, sessionID)
	if pollErr != nil {
		return toolError(pollErr), nil
	}
	return marshalResult(res)
}

func (s *SealboxServer) handleSubmitJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actionName, err := req.RequireString("action_name")
	if err != nil {
		return mcp.NewToolResultError("action_name is required"), nil
	}
	serviceName := req.GetString("service_name", "")
	params := mcp.ParseStringMap(req, "params", nil)

	jobID, subErr := s.scheduler.Submit(ctx, serviceName, actionName, params)
	if subErr != nil {
		return toolError(subErr), nil
	}
	return marshalResult(map[string]any{"job_id": jobID})
}

func (s *SealboxServer) handlePollJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := req.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError("job_id is required"), nil
	}
	st, pollErr := s.scheduler.PollStatus(ctx, jobID)
	if pollErr != nil {
		return toolError(pollErr), nil
	}
	return marshalResult(st)
}

// --- Helpers ---

// toolError renders a structured error with its code so agents can branch on
// NOT_FOUND, CAPACITY_EXCEEDED, EXPIRED and friends.
func toolError(err error) *mcp.CallToolResult {
	var se *schema.SealboxError
	if errors.As(err, &se) {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", se.Code, se.Message))
	}
	return mcp.NewToolResultError(err.Error())
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
