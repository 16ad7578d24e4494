package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thebrunchguy/sms-controller/checkin"
	"github.com/thebrunchguy/sms-controller/internal/configutil"
	"github.com/thebrunchguy/sms-controller/internal/logutil"
	"github.com/thebrunchguy/sms-controller/internal/retryutil"
	"github.com/thebrunchguy/sms-controller/internal/twilioclient"
	"github.com/thebrunchguy/sms-controller/people"
	"github.com/thebrunchguy/sms-controller/pipeline"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SMS webhook and job server",
		RunE: func(cmd *cobra.Command, args []string) error {
			bind := strings.TrimSpace(configutil.FlagOrViperString(cmd, "server-bind", "server.bind"))
			if bind == "" {
				bind = "127.0.0.1"
			}
			port := configutil.FlagOrViperInt(cmd, "server-port", "server.port")
			if port <= 0 {
				port = 8000
			}
			auth := configutil.FlagOrViperString(cmd, "server-auth-token", "server.auth_token")
			if strings.TrimSpace(auth) == "" {
				return fmt.Errorf("missing server.auth_token (set via --server-auth-token or %s_SERVER_AUTH_TOKEN)", envPrefix)
			}

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			store, closeStore, err := storeFromViper(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			sms := twilioclient.New(nil,
				viper.GetString("twilio.account_sid"),
				viper.GetString("twilio.auth_token"),
				twilioclient.Options{
					FromNumber:          viper.GetString("twilio.from_number"),
					MessagingServiceSID: viper.GetString("twilio.messaging_service_sid"),
				})

			srv := newServer(serverConfig{
				store:   store,
				pipe:    pipelineFromViper(store, logger),
				sms:     sms,
				logger:  logger,
				auth:    auth,
				baseURL: strings.TrimRight(configutil.FlagOrViperString(cmd, "base-url", "server.base_url"), "/"),
				admins:  viper.GetStringSlice("admin.numbers"),
				buffer:  reminderBufferFromViper(),
			})

			addr := bind + ":" + strconv.Itoa(port)
			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			logger.Info("server_start", "addr", addr)
			return httpSrv.ListenAndServe()
		},
	}

	cmd.Flags().String("server-bind", "127.0.0.1", "Bind address (default: 127.0.0.1).")
	cmd.Flags().Int("server-port", 8000, "HTTP port to listen on.")
	cmd.Flags().String("server-auth-token", "", "Bearer token required for /jobs endpoints.")
	cmd.Flags().String("base-url", "", "Public base URL used for status callbacks.")

	return cmd
}

type serverConfig struct {
	store   people.Store
	pipe    *pipeline.Pipeline
	sms     *twilioclient.Client
	logger  *slog.Logger
	auth    string
	baseURL string
	admins  []string
	buffer  time.Duration
	now     func() time.Time
}

type server struct {
	cfg serverConfig
}

func newServer(cfg serverConfig) *server {
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.buffer <= 0 {
		cfg.buffer = 5 * time.Minute
	}
	return &server{cfg: cfg}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/twilio/inbound", s.handleInbound)
	mux.HandleFunc("/twilio/status", s.handleStatus)
	mux.HandleFunc("/jobs/send-monthly", s.handleSendMonthly)
	mux.HandleFunc("/jobs/check-reminders", s.handleCheckReminders)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"ok": true, "time": time.Now().Format(time.RFC3339Nano)})
}

func (s *server) statusCallbackURL() string {
	if s.cfg.baseURL == "" {
		return ""
	}
	return s.cfg.baseURL + "/twilio/status"
}

// sendSMS delivers one outbound message. A failed send is retried once off
// the request path; the first error is still returned to the caller.
func (s *server) sendSMS(ctx context.Context, to, body string) (string, error) {
	sid, err := s.cfg.sms.SendSMS(ctx, to, body, s.statusCallbackURL())
	if err != nil {
		s.cfg.logger.Warn("sms_send_failed", "to", to, "error", err)
		retryutil.AsyncRetry(s.cfg.logger, "sms_send", 0, 0, func(ctx context.Context) error {
			_, retryErr := s.cfg.sms.SendSMS(ctx, to, body, s.statusCallbackURL())
			return retryErr
		})
	}
	return sid, err
}

func (s *server) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	body := strings.TrimSpace(r.PostForm.Get("Body"))
	messageSID := strings.TrimSpace(r.PostForm.Get("MessageSid"))
	if from == "" || body == "" {
		http.Error(w, "missing From or Body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	phone := pipeline.NormalizePhone(from)
	person, found, err := s.cfg.store.GetPersonByPhone(ctx, phone)
	if err != nil {
		s.cfg.logger.Warn("inbound_lookup_failed", "phone", phone, "error", err)
	}
	if !found && !s.cfg.pipe.IsAdmin(phone) {
		writeJSON(w, map[string]any{"ok": false, "message": "Unknown phone number"})
		return
	}
	if found && person.OptOut {
		writeJSON(w, map[string]any{"ok": false, "message": "Person has opted out"})
		return
	}

	checkinID := ""
	if found {
		chk, err := s.cfg.store.UpsertCheckin(ctx, person.ID, checkin.Month(s.cfg.now()), "In progress")
		if err != nil {
			s.cfg.logger.Warn("inbound_checkin_failed", "person", person.Name, "error", err)
		} else {
			checkinID = chk.ID
		}
		if err := s.cfg.store.LogMessage(ctx, people.Message{
			CheckinID:   checkinID,
			Direction:   "Inbound",
			From:        phone,
			Body:        body,
			ProviderSID: messageSID,
			CreatedAt:   s.cfg.now().UTC(),
		}); err != nil {
			s.cfg.logger.Warn("inbound_log_failed", "error", err)
		}
	}

	reply := s.cfg.pipe.HandleMessage(ctx, from, body)
	outboundSID, err := s.sendSMS(ctx, from, reply.Text)
	if found {
		if err := s.cfg.store.LogMessage(ctx, people.Message{
			CheckinID:   checkinID,
			Direction:   "Outbound",
			Body:        reply.Text,
			ProviderSID: outboundSID,
			CreatedAt:   s.cfg.now().UTC(),
		}); err != nil {
			s.cfg.logger.Warn("outbound_log_failed", "error", err)
		}
	}
	if err != nil {
		writeJSON(w, map[string]any{"ok": false, "message": "Failed to send reply"})
		return
	}
	writeJSON(w, map[string]any{"ok": true, "intent": string(reply.Intent)})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	ds := twilioclient.ParseStatusCallback(r.PostForm)
	if ds.ErrorCode != "" {
		s.cfg.logger.Warn("sms_delivery_error",
			"sid", ds.MessageSID, "status", ds.Status,
			"error_code", ds.ErrorCode, "error_message", ds.ErrorMessage)
	} else {
		s.cfg.logger.Info("sms_delivery_status", "sid", ds.MessageSID, "status", ds.Status)
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *server) handleSendMonthly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !checkAuth(r, s.cfg.auth) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	roster, err := s.cfg.store.ListPeople(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	now := s.cfg.now()
	sent, failed := 0, 0
	for _, p := range checkin.Due(roster, now) {
		if strings.TrimSpace(p.Phone) == "" {
			failed++
			continue
		}
		chk, err := s.cfg.store.UpsertCheckin(ctx, p.ID, checkin.Month(now), people.CheckinSent)
		if err != nil {
			s.cfg.logger.Warn("monthly_checkin_failed", "person", p.Name, "error", err)
			failed++
			continue
		}
		message := checkin.Outbound(p)
		sid, err := s.sendSMS(ctx, dialable(p.Phone), message)
		if err != nil {
			failed++
			continue
		}
		if err := s.cfg.store.LogMessage(ctx, people.Message{
			CheckinID:   chk.ID,
			Direction:   "Outbound",
			Body:        message,
			ProviderSID: sid,
			CreatedAt:   now.UTC(),
		}); err != nil {
			s.cfg.logger.Warn("monthly_log_failed", "error", err)
		}
		sent++
	}
	writeJSON(w, map[string]any{"ok": true, "sent": sent, "failed": failed})
}

func (s *server) handleCheckReminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !checkAuth(r, s.cfg.auth) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if len(s.cfg.admins) == 0 {
		writeJSON(w, map[string]any{"ok": false, "message": "no admin number configured"})
		return
	}
	to := dialable(s.cfg.admins[0])

	ctx := r.Context()
	now := s.cfg.now()
	due, err := s.cfg.store.ListDueReminders(ctx, now.Add(s.cfg.buffer))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sent, failed := 0, 0
	for _, rem := range due {
		text := "🔔 Reminder: " + rem.Action
		if rem.DueAt != nil {
			text += fmt.Sprintf(" (due at %s)", rem.DueAt.Format("03:04 PM"))
		}
		if _, err := s.sendSMS(ctx, to, text); err != nil {
			failed++
			continue
		}
		if err := s.cfg.store.MarkReminderSent(ctx, rem.ID, now); err != nil {
			s.cfg.logger.Warn("reminder_mark_sent_failed", "id", rem.ID, "error", err)
		}
		sent++
	}
	writeJSON(w, map[string]any{"ok": true, "total": len(due), "sent": sent, "failed": failed})
}

// dialable formats a stored phone number for the transport, which wants the
// country prefix the record store strips.
func dialable(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+1" + phone
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func checkAuth(r *http.Request, token string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	want := "Bearer " + strings.TrimSpace(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
