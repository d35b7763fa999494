package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tanpawarit/co-teacher-agent/agent/agents/handler"
	"github.com/tanpawarit/co-teacher-agent/agent/agents/orchestrator"
	cachex "github.com/tanpawarit/co-teacher-agent/agent/cache"
	"github.com/tanpawarit/co-teacher-agent/agent/contract"
	executorx "github.com/tanpawarit/co-teacher-agent/agent/executor"
	llmx "github.com/tanpawarit/co-teacher-agent/agent/llm"
	plannerx "github.com/tanpawarit/co-teacher-agent/agent/planner"
	presenterx "github.com/tanpawarit/co-teacher-agent/agent/presenter"
	"github.com/tanpawarit/co-teacher-agent/agent/prompt"
	storex "github.com/tanpawarit/co-teacher-agent/agent/store"
	budgetx "github.com/tanpawarit/co-teacher-agent/pkg/budget"
	configx "github.com/tanpawarit/co-teacher-agent/pkg/config"
	llmodx "github.com/tanpawarit/co-teacher-agent/pkg/llmod"
	logx "github.com/tanpawarit/co-teacher-agent/pkg/logger"
	_ "github.com/tanpawarit/co-teacher-agent/pkg/logger/autoload"
	pineconex "github.com/tanpawarit/co-teacher-agent/pkg/pinecone"
)

type AppConfig struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" split_words:"true" default:":8080"`
}

type queryRequest struct {
	SessionID   string `json:"session_id"`
	TeacherID   string `json:"teacher_id"`
	Query       string `json:"query"`
	StudentHint string `json:"student_hint,omitempty"`
}

func main() {
	log := logx.Component("main")

	appCfg := configx.MustNew[AppConfig]("")

	meter := budgetx.NewMeter(*configx.MustNew[budgetx.Config]("BUDGET"))

	llmClient, err := llmodx.NewClient(*configx.MustNew[llmodx.Config]("LLMOD"), meter)
	if err != nil {
		log.Fatal().Err(err).Msg("init llmod client")
	}

	methodIndex := pineconex.MustNew(*configx.MustNew[pineconex.Config]("PINECONE"))

	db, err := storex.OpenDB(*configx.MustNew[storex.Config]("POSTGRES"))
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	store, err := storex.NewPostgresStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("init store")
	}

	prompts := prompt.LoadPromptSet()
	models := llmx.NewModels(*configx.MustNew[llmx.Config]("MODEL"))
	respCache := cachex.New(*configx.MustNew[cachex.Config]("CACHE"))

	registry := handler.NewRegistry(
		handler.NewProfileHandler(llmClient, store, prompts, models.ForCategory(contract.CategoryProfile)),
		handler.NewStrategyHandler(llmClient, llmClient, methodIndex, prompts, models.ForCategory(contract.CategoryStrategy), respCache),
		handler.NewDocumentHandler(llmClient, prompts, models.ForCategory(contract.CategoryDocument), respCache),
		handler.NewPredictionHandler(llmClient, store, prompts, models.ForCategory(contract.CategoryPrediction), respCache),
	)

	pres := presenterx.New(llmClient, prompts, models.Presenter())
	exec := executorx.New(registry, llmClient, pres, prompts)
	plan := plannerx.New(llmClient, prompts, models.Planner())

	orch, err := orchestrator.New(store, store, plan, exec)
	if err != nil {
		log.Fatal().Err(err).Msg("init orchestrator")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}

		result, err := orch.HandleQuery(r.Context(), req.SessionID, req.TeacherID, req.Query, req.StudentHint)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			log.Error().Err(err).Msg("encode response")
		}
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              appCfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", appCfg.ListenAddr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Float64("spent_usd", meter.SpentUSD()).Msg("stopped")
}
