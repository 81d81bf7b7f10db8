package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/kozaktomas/vision-assist/internal/ai"
	"github.com/kozaktomas/vision-assist/internal/constants"
)

// SummarizeHandler condenses text documents
type SummarizeHandler struct {
	summarizer ai.Summarizer
}

// NewSummarizeHandler creates a new summarize handler. summarizer may be nil
// when no provider is configured.
func NewSummarizeHandler(summarizer ai.Summarizer) *SummarizeHandler {
	return &SummarizeHandler{summarizer: summarizer}
}

// SummarizeRequest is the JSON request body
type SummarizeRequest struct {
	Document    string `json:"document"`
	Instruction string `json:"instruction"`
}

// Summarize accepts either JSON or a multipart form with a "document" file
// and an optional "instruction" field.
func (h *SummarizeHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	if h.summarizer == nil {
		respondError(w, http.StatusServiceUnavailable, "no summarization provider configured")
		return
	}

	req, err := readSummarizeRequest(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := ai.ValidateDocument(req.Document); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ai.ErrDocumentTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		respondError(w, status, err.Error())
		return
	}

	summary, err := h.summarizer.Summarize(r.Context(), req.Document, req.Instruction)
	if err != nil {
		slog.Error("summarization failed", "provider", h.summarizer.Name(), "instruction", sanitizeForLog(req.Instruction), "error", err)
		respondError(w, http.StatusBadGateway, "summarization failed")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func readSummarizeRequest(w http.ResponseWriter, r *http.Request) (*SummarizeRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req SummarizeRequest
		body := http.MaxBytesReader(w, r.Body, 2*constants.MaxSummaryDocumentSize)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return nil, errors.New(errInvalidRequestBody)
		}
		return &req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		return nil, errors.New("failed to parse multipart form")
	}
	file, _, err := r.FormFile("document")
	if err != nil {
		return nil, errors.New("missing document")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxSummaryDocumentSize+1))
	if err != nil {
		return nil, errors.New("failed to read document")
	}
	return &SummarizeRequest{
		Document:    string(data),
		Instruction: r.FormValue("instruction"),
	}, nil
}
