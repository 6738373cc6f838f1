package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/collection/internal/auth"
	"github.com/iurnickita/collection/internal/handler/config"
	"github.com/iurnickita/collection/internal/logger"
	"github.com/iurnickita/collection/internal/model"
	"github.com/iurnickita/collection/internal/service"
)

func Serve(cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(auth, service, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	zaplog.Info("starting server", zap.String("addr", cfg.ServerAddr))
	return srv.ListenAndServe()
}

type handler struct {
	auth    auth.Auth
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(auth auth.Auth, service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		auth:    auth,
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/payments/_workflow", logger.RequestLogMdlw(h.auth.Middleware(h.PostWorkflow), h.zaplog))

	return mux
}

type PostWorkflowJSONRequest struct {
	RequestInfo      model.RequestInfo       `json:"RequestInfo"`
	PaymentWorkflows []model.WorkflowRequest `json:"PaymentWorkflows"`
}

type PostWorkflowJSONResponse struct {
	Payments []*model.Payment `json:"Payments"`
}

var errIncompleteWorkflow = errors.New("paymentId, tenantId and action are required")

func (h *handler) PostWorkflow(w http.ResponseWriter, r *http.Request) {
	var request PostWorkflowJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, workflow := range request.PaymentWorkflows {
		if workflow.PaymentID == "" || workflow.TenantID == "" || workflow.Action == "" {
			http.Error(w, errIncompleteWorkflow.Error(), http.StatusBadRequest)
			return
		}
	}

	// автор изменений - пользователь из токена
	request.RequestInfo.UserInfo.ID = r.Header.Get(auth.HeaderUserCodeKey)

	payments, err := h.service.PerformWorkflow(r.Context(), request.PaymentWorkflows, request.RequestInfo)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyRequest),
			errors.Is(err, service.ErrSingleActionOnly),
			errors.Is(err, service.ErrCrossTenant),
			errors.Is(err, service.ErrUnknownAction):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.zaplog.Error("payment workflow failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if payments == nil {
		payments = []*model.Payment{}
	}
	responseJSON, err := json.Marshal(PostWorkflowJSONResponse{Payments: payments})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseJSON)
}
