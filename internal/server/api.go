package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"memestash/internal/database"
	"memestash/internal/generate"
	"memestash/internal/imagesel"
	"memestash/internal/styleguide"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.checkPassword(req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	if err := s.issueSession(w); err != nil {
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// collectPayload is the post shape the browser extension sends.
type collectPayload struct {
	URL       string   `json:"url"`
	Text      string   `json:"text"`
	Images    []string `json:"images"`
	Author    string   `json:"author"`
	Platform  string   `json:"platform"`
	Likes     int      `json:"likes"`
	Retweets  int      `json:"retweets"`
	Views     int      `json:"views"`
	Comments  int      `json:"comments"`
	Bookmarks int      `json:"bookmarks"`
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Collect-Token")
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !s.checkCollectToken(r) {
		writeError(w, http.StatusUnauthorized, "invalid collect token")
		return
	}

	var payload collectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	id, isNew, err := s.db.UpsertPost(database.PostInput{
		URL:       payload.URL,
		Text:      payload.Text,
		Images:    payload.Images,
		Author:    payload.Author,
		Platform:  payload.Platform,
		Likes:     payload.Likes,
		Retweets:  payload.Retweets,
		Views:     payload.Views,
		Comments:  payload.Comments,
		Bookmarks: payload.Bookmarks,
	})
	if err != nil {
		log.Printf("Error storing collected post: %v", err)
		writeError(w, http.StatusInternalServerError, "could not store post")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "new": isNew})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	report, err := s.trends.Aggregate(days)
	if err != nil {
		log.Printf("Error aggregating trends: %v", err)
		writeError(w, http.StatusInternalServerError, "could not aggregate trends")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetStyleGuide(w http.ResponseWriter, r *http.Request) {
	guide, err := s.guides.Latest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load style guide")
		return
	}
	if guide == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"exists": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exists":         true,
		"id":             guide.ID,
		"guide_type":     guide.GuideType,
		"content":        guide.Content,
		"meme_count":     guide.MemeCount,
		"topics":         guide.Topics,
		"humor_patterns": guide.HumorPatterns,
		"created_at":     guide.CreatedAt,
	})
}

func (s *Server) handleSynthesizeStyleGuide(w http.ResponseWriter, r *http.Request) {
	result, err := s.guides.Synthesize(r.Context())
	if err != nil {
		if errors.Is(err, styleguide.ErrNoAnalyzedContent) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("Error synthesizing style guide: %v", err)
		writeError(w, http.StatusBadGateway, "style guide synthesis failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"content":    result.Guide.Content,
		"meme_count": result.PostCount,
		"saved":      result.Saved,
		"message":    result.Message,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generate.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.gen.Run(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, generate.ErrMissingTopic):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, imagesel.ErrNoImagesAvailable), errors.Is(err, imagesel.ErrNoSuitableImages):
			writeError(w, http.StatusConflict, err.Error())
		default:
			log.Printf("Error generating memes: %v", err)
			writeError(w, http.StatusBadGateway, "generation failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var result *analyzeResult
	if len(req.IDs) > 0 {
		res, err := s.analyzer.AnalyzeIDs(r.Context(), req.IDs)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		result = toAnalyzeResult(res.Processed, res.Errors, res.PerPost)
	} else {
		res, err := s.analyzer.AnalyzeAll(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		result = toAnalyzeResult(res.Processed, res.Errors, res.PerPost)
	}

	writeJSON(w, http.StatusOK, result)
}

type analyzeResult struct {
	Processed int              `json:"processed"`
	Errors    int              `json:"errors"`
	Results   map[string]string `json:"results"`
}

func toAnalyzeResult(processed, errCount int, perPost map[int64]error) *analyzeResult {
	results := make(map[string]string, len(perPost))
	for id, err := range perPost {
		if err == nil {
			results[strconv.FormatInt(id, 10)] = "ok"
		} else {
			results[strconv.FormatInt(id, 10)] = err.Error()
		}
	}
	return &analyzeResult{Processed: processed, Errors: errCount, Results: results}
}
