// Package httpapi exposes the stateless request/response endpoints. Each
// handler validates its body, performs a single gateway call, and translates
// failures into the { error, details } envelope. There is no session affinity
// at this layer.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/quantumflow/aichat/pkg/chat"
	"github.com/quantumflow/aichat/pkg/gateway"
)

// Version reported by the informational GET handlers.
const Version = "1.0.0"

type chatRequest struct {
	Messages    []chatRequestMessage `json:"messages"`
	Model       string               `json:"model,omitempty"`
	Temperature float32              `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
}

type chatRequestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Success  bool        `json:"success"`
	Response string      `json:"response"`
	Usage    *chat.Usage `json:"usage,omitempty"`
	Model    string      `json:"model"`
}

type imageRequest struct {
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type imageResponse struct {
	Success bool   `json:"success"`
	Image   string `json:"image"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// NewChatHandler serves POST /api/ai/chat and the informational GET variant.
func NewChatHandler(gw gateway.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "AI Chat API is running",
				"version": Version,
				"endpoints": map[string]string{
					"chat":  "POST /api/ai/chat",
					"image": "POST /api/ai/image",
				},
			})
		case http.MethodPost:
			handleChatCompletion(w, req, gw)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func handleChatCompletion(w http.ResponseWriter, req *http.Request, gw gateway.Client) {
	var body chatRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format", "")
		return
	}
	if len(body.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "Messages array is required", "")
		return
	}

	history := make([]chat.Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		history = append(history, chat.Message{Role: chat.Role(m.Role), Content: m.Content})
	}

	reply, err := gw.Complete(req.Context(), history, gateway.CompleteOptions{
		Model:       body.Model,
		Temperature: body.Temperature,
		MaxTokens:   body.MaxTokens,
	})
	if err != nil {
		log.Error().Err(err).Str("component", "httpapi").Msg("chat completion failed")
		writeError(w, http.StatusInternalServerError, "Failed to generate response", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Success:  true,
		Response: reply.Content,
		Usage:    reply.Usage,
		Model:    reply.Model,
	})
}

// NewImageHandler serves POST /api/ai/image and the informational GET variant.
func NewImageHandler(gw gateway.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{
				"message":             "AI Image Generation API is running",
				"version":             Version,
				"supportedSizes":      []string{"1024x1024", "1792x1024", "1024x1792"},
				"supportedQualities":  []string{"standard", "hd"},
			})
		case http.MethodPost:
			handleImageGeneration(w, req, gw)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func handleImageGeneration(w http.ResponseWriter, req *http.Request, gw gateway.Client) {
	var body imageRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request format", "")
		return
	}
	if body.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required and must be a string", "")
		return
	}
	if body.Size == "" {
		body.Size = gateway.DefaultImageSize
	}
	if body.Quality == "" {
		body.Quality = gateway.DefaultImageQuality
	}

	img, err := gw.GenerateImage(req.Context(), body.Prompt, body.Size)
	if err != nil {
		log.Error().Err(err).Str("component", "httpapi").Msg("image generation failed")
		writeError(w, http.StatusInternalServerError, "Failed to generate image", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, imageResponse{
		Success: true,
		Image:   img.Image,
		Prompt:  body.Prompt,
		Size:    body.Size,
		Quality: body.Quality,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "httpapi").Msg("response write failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}
