package assistant

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"shopping-assistant-backend/internal/config"
	"shopping-assistant-backend/internal/parser"
	"shopping-assistant-backend/internal/types"
	"shopping-assistant-backend/internal/validator"
)

// interpret turns raw model output into a reply. Structural failures are
// salvaged locally first, then the model is asked exactly once to correct
// its output, and if that fails too the text is shown as a plain message.
func (s *Service) interpret(ctx context.Context, logger *zap.Logger, creq types.CompletionRequest, raw string) *types.ChatReply {
	if reply := s.decodeOrSalvage(raw); reply != nil {
		return reply
	}
	logger.Info("model reply is not structured, asking for a corrected one")

	if fixed, err := s.repair(ctx, creq, raw); err != nil {
		logger.Warn("repair request failed", zap.Error(err))
	} else if reply := s.decodeOrSalvage(fixed); reply != nil {
		reply.Repaired = true
		return reply
	} else {
		logger.Warn("repaired reply is still not structured, showing plain text")
	}

	return &types.ChatReply{
		Contract:  s.opts.Contract,
		PlainText: modelText(raw),
		Degraded:  true,
	}
}

func (s *Service) decodeOrSalvage(text string) *types.ChatReply {
	if reply := s.decode(text); reply != nil {
		return reply
	}
	if obj := extractJSONObject(text); obj != "" && obj != text {
		return s.decode(obj)
	}
	return nil
}

func (s *Service) decode(text string) *types.ChatReply {
	if s.opts.Contract == config.ContractNested {
		data, err := parser.Parse(text)
		if err != nil {
			return nil
		}
		return &types.ChatReply{Contract: s.opts.Contract, Parsed: data}
	}

	var candidate any
	if err := json.Unmarshal([]byte(text), &candidate); err != nil {
		return nil
	}
	if _, ok := candidate.(map[string]any); !ok {
		return nil
	}
	resp, res := validator.Sanitize(candidate)
	return &types.ChatReply{Contract: s.opts.Contract, Response: &resp, Validation: &res}
}

// repair sends the malformed output back with the corrective instruction.
func (s *Service) repair(ctx context.Context, creq types.CompletionRequest, raw string) (string, error) {
	text := modelText(raw)
	instruction, err := s.prompts.Repair(text)
	if err != nil {
		return "", err
	}
	rreq := creq
	rreq.Image = ""
	rreq.ImageMediaType = ""
	rreq.Messages = append(append([]types.Turn(nil), creq.Messages...),
		types.Turn{Role: "assistant", Content: text},
		types.Turn{Role: "user", Content: instruction},
	)
	return s.provider.Complete(ctx, rreq)
}

// modelText unwraps {"reply": "..."} envelopes so the model sees, and the
// user is shown, the text the model actually produced.
func modelText(raw string) string {
	var env struct {
		Reply *string `json:"reply"`
	}
	if err := json.Unmarshal([]byte(raw), &env); err == nil && env.Reply != nil && *env.Reply != "" {
		return *env.Reply
	}
	return strings.TrimSpace(raw)
}

// extractJSONObject returns the text between the first '{' and the last
// '}', or "" when there is no such span.
func extractJSONObject(s string) string {
	first := strings.IndexByte(s, '{')
	last := strings.LastIndexByte(s, '}')
	if first < 0 || last <= first {
		return ""
	}
	return s[first : last+1]
}
