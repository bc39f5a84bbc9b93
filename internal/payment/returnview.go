package payment

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var returnTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// ReturnHandler serves the page the processor redirects the shopper back to.
// The page polls the status endpoint until the payment resolves or the
// attempt budget runs out; the actual outcome is decided server-side.
type ReturnHandler struct {
	StatusPath  string
	MaxAttempts int
	WaitTime    time.Duration
	Logger      zerolog.Logger
}

// Handle serves GET. The processor appends its own "id" parameter on
// redirect; our initiation flow pre-fills merchant_reference and
// payment_method.
func (h *ReturnHandler) Handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reference := strings.TrimSpace(q.Get("merchant_reference"))
	paymentMethod := strings.TrimSpace(q.Get("payment_method"))
	checkoutID := strings.TrimSpace(q.Get("checkout_id"))
	if checkoutID == "" {
		checkoutID = strings.TrimSpace(q.Get("id"))
	}

	if reference == "" || paymentMethod == "" || checkoutID == "" {
		h.renderError(w, http.StatusBadRequest, "This payment link is incomplete. Please restart the checkout from your cart.")
		return
	}

	statusQuery := url.Values{}
	statusQuery.Set("merchant_reference", reference)
	statusQuery.Set("checkout_id", checkoutID)
	statusQuery.Set("payment_method", paymentMethod)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := returnTemplates.ExecuteTemplate(w, "return_wait", map[string]any{
		"StatusURL":   h.StatusPath + "?" + statusQuery.Encode(),
		"MaxAttempts": h.MaxAttempts,
		"WaitTimeMS":  h.WaitTime.Milliseconds(),
	})
	if err != nil {
		h.Logger.Error().Err(err).Msg("render return page failed")
	}
}

func (h *ReturnHandler) renderError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	err := returnTemplates.ExecuteTemplate(w, "return_error", map[string]any{"Message": message})
	if err != nil {
		h.Logger.Error().Err(err).Msg("render error page failed")
	}
}
