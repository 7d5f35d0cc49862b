package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/api"
	"github.com/linesmerrill/agendajur-api/config"
	"github.com/linesmerrill/agendajur-api/databases"
	"github.com/linesmerrill/agendajur-api/email"
	"github.com/linesmerrill/agendajur-api/identity"
	"github.com/linesmerrill/agendajur-api/logging"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/session"
	"github.com/linesmerrill/agendajur-api/store"
	"github.com/linesmerrill/agendajur-api/uploads"
)

// RequestTimeout bounds every request except websocket connections
const RequestTimeout = 2 * time.Minute

// App stores the router and db connection, so it can be reused
type App struct {
	Router   *mux.Router
	Config   config.Config
	Service  *session.Service
	Auth     *api.Authenticator
	Signer   Signer
	Location *time.Location
	Limiter  *api.RateLimiter

	// set by Initialize, used by the scheduler and shutdown
	Hearings *store.MongoHearings
	Users    databases.UserDatabase
	Locks    databases.SchedulerLockDatabase
	Mail     email.Sender
	client   databases.ClientHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	if a.Limiter == nil {
		a.Limiter = api.NewRateLimiter(20, 5)
	}
	if a.Location == nil {
		a.Location = time.UTC
	}
	logger := logging.Named("http")

	r := mux.NewRouter()
	r.Use(api.RequestLogger(logger), api.TimeoutMiddleware(RequestTimeout))

	u := Auth{Svc: a.Service, Guard: a.Auth}
	h := Hearing{Svc: a.Service}
	l := Log{Svc: a.Service, Location: a.Location}
	c := CloudinaryHandler{Signer: a.Signer, Roles: a.Service.Roles}
	ws := Socket{Svc: a.Service}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/auth/signup", a.Limiter.Middleware(http.HandlerFunc(u.SignUpHandler))).Methods("POST")
	apiCreate.Handle("/auth/token", a.Limiter.Middleware(http.HandlerFunc(u.CreateTokenHandler))).Methods("POST")
	apiCreate.Handle("/auth/forgot-password", a.Limiter.Middleware(http.HandlerFunc(u.ForgotPasswordHandler))).Methods("POST")
	apiCreate.Handle("/auth/reset-password", a.Limiter.Middleware(http.HandlerFunc(u.ResetPasswordHandler))).Methods("POST")
	apiCreate.Handle("/auth/logout", a.Auth.Middleware(http.HandlerFunc(u.LogoutHandler))).Methods("DELETE")
	apiCreate.Handle("/auth/me", a.Auth.Middleware(http.HandlerFunc(u.MeHandler))).Methods("GET")

	apiCreate.Handle("/hearings", a.Auth.Middleware(http.HandlerFunc(h.HearingsHandler))).Methods("GET")
	apiCreate.Handle("/hearings", a.Auth.Middleware(http.HandlerFunc(h.CreateHearingHandler))).Methods("POST")
	apiCreate.Handle("/hearing/{hearing_id}", a.Auth.Middleware(http.HandlerFunc(h.HearingByIDHandler))).Methods("GET")
	apiCreate.Handle("/hearing/{hearing_id}", a.Auth.Middleware(http.HandlerFunc(h.UpdateHearingHandler))).Methods("PUT")
	apiCreate.Handle("/hearing/{hearing_id}", a.Auth.Middleware(http.HandlerFunc(h.DeleteHearingHandler))).Methods("DELETE")
	apiCreate.Handle("/hearing/{hearing_id}/attachments", a.Auth.Middleware(http.HandlerFunc(h.AttachmentsHandler))).Methods("GET")
	apiCreate.Handle("/hearing/{hearing_id}/attachments", a.Auth.Middleware(http.HandlerFunc(h.AddAttachmentsHandler))).Methods("POST")
	apiCreate.Handle("/hearing/{hearing_id}/attachments/{index}", a.Auth.Middleware(http.HandlerFunc(h.RemoveAttachmentHandler))).Methods("DELETE")

	apiCreate.Handle("/logs", a.Auth.Middleware(http.HandlerFunc(l.LogsHandler))).Methods("GET")
	apiCreate.Handle("/logs/report", a.Auth.Middleware(http.HandlerFunc(l.ReportHandler))).Methods("GET")

	apiCreate.Handle("/generate-signature", a.Auth.Middleware(http.HandlerFunc(c.GenerateSignature))).Methods("POST")

	apiCreate.Handle("/ws", a.Auth.Middleware(http.HandlerFunc(ws.SocketHandler))).Methods("GET")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {
	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().Errorw("failed to create new client", "error", err)
		return err
	}

	dbHelper := databases.NewDatabase(&a.Config, client)
	ctx, cancel := api.WithQueryTimeout(context.Background())
	defer cancel()
	err = client.Connect(ctx)
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().Errorw("failed to connect to database", "error", err)
		return err
	}
	a.client = client
	zap.S().Info("agendajur-api has connected to the database")

	tokens, err := identity.NewTokens(a.Config.JWTSecret)
	if err != nil {
		return err
	}

	signer, err := uploads.NewCloudinaryStorage(a.Config.CloudinaryCloudName, a.Config.CloudinaryAPIKey,
		a.Config.CloudinaryAPISecret, a.Config.CloudinaryUploadPreset)
	if err != nil {
		return fmt.Errorf("failed to configure cloudinary: %w", err)
	}

	if a.Config.SendgridAPIKey != "" {
		a.Mail = email.NewSendGrid(a.Config.SendgridAPIKey, a.Config.MailFrom)
	} else {
		zap.S().Warn("SENDGRID_API_KEY not set, emails will only be logged")
		a.Mail = email.LogSender{Logger: logging.Named("email")}
	}

	a.Users = databases.NewUserDatabase(dbHelper)
	a.Locks = databases.NewSchedulerLockDatabase(dbHelper)
	a.Hearings = store.NewMongoHearings(databases.NewHearingDatabase(dbHelper), a.Config.PollInterval, logging.Named("store"))
	logs := store.NewMongoLogs(databases.NewLogDatabase(dbHelper), a.Config.PollInterval, logging.Named("store"))
	provider := identity.NewProvider(a.Users, databases.NewPasswordResetDatabase(dbHelper), a.Mail, a.Config.BaseURL, logging.Named("identity"))

	a.Service = session.NewService(provider, a.Hearings, logs,
		uploads.NewPipeline(signer, logging.Named("uploads")),
		session.Roles{AdminEmail: a.Config.AdminEmail}, zap.S())
	a.Service.Stored = signer
	a.Auth = api.NewAuthenticator(context.Background(), tokens)
	a.Auth.Follow(context.Background(), provider)
	a.Signer = signer
	a.Location = a.Config.Location()
	a.Limiter = api.NewRateLimiter(20, 5)
	a.Limiter.TrustedHops = a.Config.TrustedProxyHops

	// initialize api router
	a.initializeRoutes()
	return nil
}

// Close disconnects from the database
func (a *App) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
