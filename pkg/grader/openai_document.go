package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultPollInterval = time.Second
	cleanupTimeout      = 10 * time.Second
)

var fileSearchTool = openai.ThreadAttachmentTool{Type: string(openai.AssistantToolTypeFileSearch)}

// gradeDocument grades a PDF through the assistants API: the file is
// uploaded, attached to a thread message and searched by a throwaway
// assistant. Everything created on the way is deleted afterwards.
func (g *OpenAIGrader) gradeDocument(ctx context.Context, req Request) (json.RawMessage, error) {
	file, err := g.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    req.FileName,
		Bytes:   req.Content,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", req.FileName, classifyOpenAIError(err))
	}
	defer g.cleanup(ctx, "file", file.ID, func(ctx context.Context) error {
		return g.client.DeleteFile(ctx, file.ID)
	})

	name := "Grading Assistant"
	instructions := graderSystemPrompt()
	temperature := g.cfg.Temperature
	assistant, err := g.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        g.cfg.Model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
		Temperature:  &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("create assistant: %w", classifyOpenAIError(err))
	}
	defer g.cleanup(ctx, "assistant", assistant.ID, func(ctx context.Context) error {
		_, err := g.client.DeleteAssistant(ctx, assistant.ID)
		return err
	})

	thread, err := g.client.CreateThread(ctx, openai.ThreadRequest{
		Messages: []openai.ThreadMessage{{
			Role:    openai.ThreadMessageRoleUser,
			Content: buildDocumentPrompt(req),
			Attachments: []openai.ThreadAttachment{{
				FileID: file.ID,
				Tools:  []openai.ThreadAttachmentTool{fileSearchTool},
			}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", classifyOpenAIError(err))
	}
	defer g.cleanup(ctx, "thread", thread.ID, func(ctx context.Context) error {
		_, err := g.client.DeleteThread(ctx, thread.ID)
		return err
	})

	run, err := g.client.CreateRun(ctx, thread.ID, openai.RunRequest{AssistantID: assistant.ID})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", classifyOpenAIError(err))
	}
	run, err = g.awaitRun(ctx, thread.ID, run)
	if err != nil {
		return nil, err
	}

	messages, err := g.client.ListMessage(ctx, thread.ID, nil, nil, nil, nil, &run.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", classifyOpenAIError(err))
	}
	reply, ok := assistantReply(messages.Messages)
	if !ok {
		return nil, &ServiceError{Message: "no text response from assistant", retryable: true}
	}

	g.logger.Debug().
		Str("file_name", req.FileName).
		Int("total_tokens", run.Usage.TotalTokens).
		Msg("openai document grading completed")

	return json.RawMessage(stripCodeFence(reply)), nil
}

// awaitRun polls until the run leaves the queued and in-progress states.
func (g *OpenAIGrader) awaitRun(ctx context.Context, threadID string, run openai.Run) (openai.Run, error) {
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for run.Status == openai.RunStatusQueued || run.Status == openai.RunStatusInProgress {
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}

		var err error
		run, err = g.client.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return run, fmt.Errorf("retrieve run: %w", classifyOpenAIError(err))
		}
	}

	if run.Status != openai.RunStatusCompleted {
		message := fmt.Sprintf("assistant run ended with status %s", run.Status)
		if run.LastError != nil && run.LastError.Message != "" {
			message += ": " + run.LastError.Message
		}
		return run, &ServiceError{Message: message, retryable: true}
	}
	return run, nil
}

// cleanup runs even when ctx has expired so timed out gradings do not leave
// objects behind on the account.
func (g *OpenAIGrader) cleanup(ctx context.Context, kind, id string, remove func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := remove(ctx); err != nil {
		g.logger.Warn().Err(err).Str(kind+"_id", id).Msgf("failed to delete openai %s", kind)
	}
}

func assistantReply(messages []openai.Message) (string, bool) {
	for _, message := range messages {
		if message.Role != string(openai.ThreadMessageRoleAssistant) {
			continue
		}
		for _, content := range message.Content {
			if content.Type == "text" && content.Text != nil && strings.TrimSpace(content.Text.Value) != "" {
				return content.Text.Value, true
			}
		}
	}
	return "", false
}

func buildDocumentPrompt(req Request) string {
	prompt := buildGradingPrompt(req)
	return strings.Replace(prompt, "The submission follows in the next message.", "The submission is the attached PDF file.", 1)
}
