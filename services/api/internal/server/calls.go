package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"bizassist/internal/util"
	"bizassist/pkg/domain"
	"bizassist/services/api/internal/app"
)

const twilioSignatureHeader = "X-Twilio-Signature"

type callRequest struct {
	Direction       string `json:"direction" validate:"omitempty,oneof=inbound outbound"`
	From            string `json:"from" validate:"max=32"`
	To              string `json:"to" validate:"max=32"`
	Status          string `json:"status"`
	DurationSeconds int    `json:"durationSeconds" validate:"gte=0"`
	Notes           string `json:"notes" validate:"max=4000"`
	ContactID       string `json:"contactId"`
}

type faqRequest struct {
	Question string   `json:"question" validate:"required,max=500"`
	Answer   string   `json:"answer" validate:"required,max=2000"`
	Keywords []string `json:"keywords" validate:"max=20,dive,max=64"`
}

// handleCallWebhook receives form-encoded telephony callbacks. When an auth
// token is configured the vendor signature must match.
func (s *Server) handleCallWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	if s.telephonyToken != "" {
		if !validTwilioSignature(s.telephonyToken, s.webhookURL(r), r.PostForm, r.Header.Get(twilioSignatureHeader)) {
			s.audit(r, "api.calls.webhook", "fail", "reason", "invalid_signature")
			writeError(w, http.StatusForbidden, "invalid signature")
			return
		}
	}
	duration, _ := strconv.Atoi(r.PostForm.Get("CallDuration"))
	res, err := s.app.HandleCallWebhook(r.Context(), app.CallEvent{
		CallSid:         r.PostForm.Get("CallSid"),
		Status:          r.PostForm.Get("CallStatus"),
		Direction:       r.PostForm.Get("Direction"),
		From:            r.PostForm.Get("From"),
		To:              r.PostForm.Get("To"),
		SpeechResult:    r.PostForm.Get("SpeechResult"),
		DurationSeconds: duration,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if res.TwiML == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.TwiML)
}

// webhookURL is the URL the vendor signed: the public base when configured,
// else the URL the request arrived with.
func (s *Server) webhookURL(r *http.Request) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + r.URL.RequestURI()
	}
	return util.ExternalURL(r, s.trusted)
}

// validTwilioSignature checks base64(HMAC-SHA1(token, url + sorted k+v pairs)).
func validTwilioSignature(token, fullURL string, form url.Values, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(twilioSignature(token, fullURL, form), expected)
}

func twilioSignature(token, fullURL string, form url.Values) []byte {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return mac.Sum(nil)
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		page, err := queryInt(q, "page")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		pageSize, err := queryInt(q, "pageSize")
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		list, err := s.app.ListCalls(r.Context(), id, page, pageSize)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req callRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		call, err := s.app.CreateCall(r.Context(), id, app.CallInput{
			Direction:       req.Direction,
			From:            req.From,
			To:              req.To,
			Status:          req.Status,
			DurationSeconds: req.DurationSeconds,
			Notes:           req.Notes,
			ContactID:       req.ContactID,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, call)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCallByID(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	callID := strings.TrimPrefix(r.URL.Path, "/api/calls/")
	if callID == "" || strings.Contains(callID, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	call, err := s.app.GetCall(r.Context(), id, callID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (s *Server) handleFAQs(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.app.ListFAQs(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	case http.MethodPost:
		var req faqRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		faq, err := s.app.CreateFAQ(r.Context(), id, app.FAQInput{Question: req.Question, Answer: req.Answer, Keywords: req.Keywords})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, faq)
	default:
		methodNotAllowed(w)
	}
}

func queryInt(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &app.ValidationError{Field: name, Message: name + " must be a positive integer"}
	}
	return n, nil
}
