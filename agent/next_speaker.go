package agent

import (
	"context"
	"fmt"

	"github.com/achadsiri/gemini-cli/chat"
	"github.com/achadsiri/gemini-cli/llm"
)

// NextSpeakerResponse is the classifier's verdict on who talks next.
type NextSpeakerResponse struct {
	Reasoning   string `json:"reasoning"`
	NextSpeaker string `json:"next_speaker"`
}

// CheckNextSpeaker asks the model whether it should keep talking without new
// user input. It returns nil, nil when there is nothing to judge: an empty
// curated history, or one that does not end with a model turn.
func (c *Client) CheckNextSpeaker(ctx context.Context, session *chat.Session) (*NextSpeakerResponse, error) {
	curated := session.History(true)
	if len(curated) == 0 || curated[len(curated)-1].Role != llm.RoleModel {
		return nil, nil
	}

	contents := append(curated, llm.UserText(nextSpeakerPrompt))
	parsed, err := c.GenerateJSON(ctx, contents, nextSpeakerSchema, c.jsonModel)
	if err != nil {
		return nil, err
	}

	speaker, _ := parsed["next_speaker"].(string)
	if speaker != "user" && speaker != "model" {
		return nil, fmt.Errorf("next speaker check returned %q", speaker)
	}
	reasoning, _ := parsed["reasoning"].(string)
	return &NextSpeakerResponse{Reasoning: reasoning, NextSpeaker: speaker}, nil
}
