package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"stratline/internal/answers"
	"stratline/internal/catalog"
	"stratline/internal/domain"
	"stratline/internal/engine"
	"stratline/internal/repo"
	"stratline/internal/scheduler"
)

// Config for the HTTP API handler.
type Config struct {
	Engine    engine.Engine
	Scheduler *scheduler.Scheduler
	BasePath  string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_field"`
	Message string         `json:"message" example:"field price_point expects number, got string"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"price_point\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

const defaultLearnerID = "local-user"

// New returns an HTTP handler exposing the Stratline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Stratline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCatalog(group, cfg.Engine)
	registerAnswers(group, cfg.Engine)
	registerLedger(group, cfg.Engine)
	registerInsights(group, cfg.Engine)
	registerChallenge(group, cfg.Engine, cfg.Scheduler)
	registerSnapshots(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fte answers.FieldTypeError
	if errors.As(err, &fte) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_field", err.Error(), map[string]any{
			"field": fte.FieldID, "want": string(fte.Want), "got": fte.Got,
		})
	}
	switch {
	case errors.Is(err, answers.ErrUnknownModule),
		errors.Is(err, answers.ErrUnknownWorksheet),
		errors.Is(err, answers.ErrUnknownField),
		errors.Is(err, answers.ErrUnknownResponse),
		errors.Is(err, answers.ErrUnknownPushback),
		errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func learner(id string) string {
	if id == "" {
		return defaultLearnerID
	}
	return id
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Stratline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-catalog",
		Method:      http.MethodGet,
		Path:        "/catalog",
		Summary:     "Full curriculum catalog",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body catalog.Catalog `json:"body"`
	}, error) {
		return &struct {
			Body catalog.Catalog `json:"body"`
		}{Body: *e.Catalog}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-modules",
		Method:      http.MethodGet,
		Path:        "/modules",
		Summary:     "List modules with completion state",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ModuleSummary `json:"body"`
	}, error) {
		return &struct {
			Body []ModuleSummary `json:"body"`
		}{Body: moduleSummaries(e.Catalog, e.Store)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-module",
		Method:      http.MethodGet,
		Path:        "/modules/{module_id}",
		Summary:     "Module definition",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ModuleID string `path:"module_id"`
	}) (*struct {
		Body catalog.Module `json:"body"`
	}, error) {
		m, ok := e.Catalog.Module(input.ModuleID)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: %s", answers.ErrUnknownModule, input.ModuleID))
		}
		return &struct {
			Body catalog.Module `json:"body"`
		}{Body: *m}, nil
	})
}

func registerAnswers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-answers",
		Method:      http.MethodGet,
		Path:        "/answers",
		Summary:     "Full answer store",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StoreResponse `json:"body"`
	}, error) {
		return &struct {
			Body StoreResponse `json:"body"`
		}{Body: storeResponse(e.Store)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-module-answers",
		Method:      http.MethodGet,
		Path:        "/modules/{module_id}/answers",
		Summary:     "Answers recorded for one module",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ModuleID string `path:"module_id"`
	}) (*struct {
		Body domain.ModuleOutput `json:"body"`
	}, error) {
		out, err := e.Store.ModuleAnswers(input.ModuleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ModuleOutput `json:"body"`
		}{Body: *out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-output",
		Method:      http.MethodPut,
		Path:        "/modules/{module_id}/outputs/{output_id}",
		Summary:     "Record a required-output value",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ModuleID  string `path:"module_id"`
		OutputID  string `path:"output_id"`
		LearnerID string `header:"X-Learner-Id"`
		Body      SetValueRequest
	}) (*struct {
		Body domain.ModuleOutput `json:"body"`
	}, error) {
		if err := e.RecordOutput(ctx, input.ModuleID, input.OutputID, input.Body.Value, learner(input.LearnerID)); err != nil {
			return nil, handleError(err)
		}
		out, err := e.Store.ModuleAnswers(input.ModuleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ModuleOutput `json:"body"`
		}{Body: *out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-worksheet-field",
		Method:      http.MethodPut,
		Path:        "/modules/{module_id}/worksheets/{worksheet_id}/fields/{field_id}",
		Summary:     "Record a worksheet field value",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ModuleID    string `path:"module_id"`
		WorksheetID string `path:"worksheet_id"`
		FieldID     string `path:"field_id"`
		LearnerID   string `header:"X-Learner-Id"`
		Body        SetValueRequest
	}) (*struct {
		Body domain.ModuleOutput `json:"body"`
	}, error) {
		if err := e.RecordWorksheetField(ctx, input.ModuleID, input.WorksheetID, input.FieldID, input.Body.Value, learner(input.LearnerID)); err != nil {
			return nil, handleError(err)
		}
		out, err := e.Store.ModuleAnswers(input.ModuleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ModuleOutput `json:"body"`
		}{Body: *out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-worksheet",
		Method:      http.MethodPost,
		Path:        "/modules/{module_id}/worksheets/{worksheet_id}/complete",
		Summary:     "Mark a worksheet complete",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ModuleID    string `path:"module_id"`
		WorksheetID string `path:"worksheet_id"`
		LearnerID   string `header:"X-Learner-Id"`
	}) (*struct {
		Body domain.ModuleOutput `json:"body"`
	}, error) {
		if err := e.CompleteWorksheet(ctx, input.ModuleID, input.WorksheetID, learner(input.LearnerID)); err != nil {
			return nil, handleError(err)
		}
		out, err := e.Store.ModuleAnswers(input.ModuleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ModuleOutput `json:"body"`
		}{Body: *out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-response",
		Method:      http.MethodPut,
		Path:        "/modules/{module_id}/responses/{kind}",
		Summary:     "Record a free-text response",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ModuleID  string `path:"module_id"`
		Kind      string `path:"kind" enum:"challenge,adversarial,synthesis,week_ahead"`
		LearnerID string `header:"X-Learner-Id"`
		Body      SetResponseRequest
	}) (*struct {
		Body domain.ModuleOutput `json:"body"`
	}, error) {
		if err := e.RecordResponse(ctx, input.ModuleID, input.Kind, input.Body.Text, learner(input.LearnerID)); err != nil {
			return nil, handleError(err)
		}
		out, err := e.Store.ModuleAnswers(input.ModuleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ModuleOutput `json:"body"`
		}{Body: *out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-quiz",
		Method:      http.MethodPost,
		Path:        "/modules/{module_id}/quiz",
		Summary:     "Record a quiz attempt",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ModuleID  string `path:"module_id"`
		LearnerID string `header:"X-Learner-Id"`
		Body      QuizResultRequest
	}) (*struct {
		Body domain.ModuleOutput `json:"body"`
	}, error) {
		if err := e.RecordQuizResult(ctx, input.ModuleID, input.Body.Correct, input.Body.Total, input.Body.ConceptGap, learner(input.LearnerID)); err != nil {
			return nil, handleError(err)
		}
		out, err := e.Store.ModuleAnswers(input.ModuleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ModuleOutput `json:"body"`
		}{Body: *out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-module",
		Method:      http.MethodPost,
		Path:        "/modules/{module_id}/complete",
		Summary:     "Mark a module complete",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ModuleID  string `path:"module_id"`
		LearnerID string `header:"X-Learner-Id"`
	}) (*struct {
		Body domain.ModuleOutput `json:"body"`
	}, error) {
		if err := e.CompleteModule(ctx, input.ModuleID, learner(input.LearnerID)); err != nil {
			return nil, handleError(err)
		}
		out, err := e.Store.ModuleAnswers(input.ModuleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ModuleOutput `json:"body"`
		}{Body: *out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "load-demo",
		Method:      http.MethodPost,
		Path:        "/demo",
		Summary:     "Replace all answers with demo data",
	}, func(ctx context.Context, input *struct {
		LearnerID string `header:"X-Learner-Id"`
	}) (*struct {
		Body StoreResponse `json:"body"`
	}, error) {
		demo := answers.Demo(e.Catalog)
		data, err := demo.ToJSON()
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.Store.RestoreJSON(data); err != nil {
			return nil, handleError(err)
		}
		if err := e.LogEvent(ctx, "demo.loaded", "store", "", learner(input.LearnerID), nil); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoreResponse `json:"body"`
		}{Body: storeResponse(e.Store)}, nil
	})
}

func registerLedger(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "append-thesis",
		Method:      http.MethodPost,
		Path:        "/ledger/thesis",
		Summary:     "Append a thesis ledger line",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		LearnerID string `header:"X-Learner-Id"`
		Body      ThesisLineRequest
	}) (*struct {
		Body StoreResponse `json:"body"`
	}, error) {
		if err := e.AppendThesisLine(ctx, input.Body.Line, learner(input.LearnerID)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoreResponse `json:"body"`
		}{Body: storeResponse(e.Store)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-pushback",
		Method:      http.MethodPut,
		Path:        "/ledger/pushbacks/{pushback_id}",
		Summary:     "Record a boardroom-pushback response",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PushbackID string `path:"pushback_id"`
		LearnerID  string `header:"X-Learner-Id"`
		Body       PushbackRequest
	}) (*struct {
		Body StoreResponse `json:"body"`
	}, error) {
		if err := e.RecordPushback(ctx, input.PushbackID, input.Body.Response, learner(input.LearnerID)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoreResponse `json:"body"`
		}{Body: storeResponse(e.Store)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-credibility",
		Method:      http.MethodGet,
		Path:        "/ledger/credibility",
		Summary:     "Current credibility score",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CredibilityResponse `json:"body"`
	}, error) {
		return &struct {
			Body CredibilityResponse `json:"body"`
		}{Body: CredibilityResponse{Credibility: e.Store.CredibilityScore()}}, nil
	})
}

func registerInsights(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "module-warnings",
		Method:      http.MethodGet,
		Path:        "/modules/{module_id}/warnings",
		Summary:     "Failing upstream assumptions for a module",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ModuleID string `path:"module_id"`
	}) (*struct {
		Body WarningsResponse `json:"body"`
	}, error) {
		if _, ok := e.Catalog.Module(input.ModuleID); !ok {
			return nil, handleError(fmt.Errorf("%w: %s", answers.ErrUnknownModule, input.ModuleID))
		}
		return &struct {
			Body WarningsResponse `json:"body"`
		}{Body: WarningsResponse{Warnings: e.CheckDependencies(input.ModuleID)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "module-violations",
		Method:      http.MethodGet,
		Path:        "/modules/{module_id}/violations",
		Summary:     "Consistency-rule violations for a module",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ModuleID string `path:"module_id"`
	}) (*struct {
		Body ViolationsResponse `json:"body"`
	}, error) {
		if _, ok := e.Catalog.Module(input.ModuleID); !ok {
			return nil, handleError(fmt.Errorf("%w: %s", answers.ErrUnknownModule, input.ModuleID))
		}
		return &struct {
			Body ViolationsResponse `json:"body"`
		}{Body: ViolationsResponse{Violations: e.EvaluateModuleRules(input.ModuleID)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "invalidated-modules",
		Method:      http.MethodGet,
		Path:        "/invalidated",
		Summary:     "Completed modules with violated upstream assumptions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body InvalidatedResponse `json:"body"`
	}, error) {
		return &struct {
			Body InvalidatedResponse `json:"body"`
		}{Body: InvalidatedResponse{Modules: e.InvalidatedModules()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "score-note",
		Method:      http.MethodPost,
		Path:        "/score",
		Summary:     "Score a strategy note against the rubric",
	}, func(ctx context.Context, input *struct {
		Body domain.StrategyNote
	}) (*struct {
		Body domain.NoteScore `json:"body"`
	}, error) {
		return &struct {
			Body domain.NoteScore `json:"body"`
		}{Body: engine.ScoreStrategyNote(&input.Body)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-metrics",
		Method:      http.MethodGet,
		Path:        "/metrics",
		Summary:     "Derived valuation and CAC",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Valuation `json:"body"`
	}, error) {
		return &struct {
			Body domain.Valuation `json:"body"`
		}{Body: e.Valuation()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-trajectory",
		Method:      http.MethodGet,
		Path:        "/metrics/trajectory",
		Summary:     "Profit trajectory series",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.TrajectoryPoint `json:"body"`
	}, error) {
		return &struct {
			Body []domain.TrajectoryPoint `json:"body"`
		}{Body: e.Trajectory()}, nil
	})
}

func registerChallenge(api huma.API, e engine.Engine, sched *scheduler.Scheduler) {
	if sched == nil {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-challenge",
		Method:      http.MethodGet,
		Path:        "/challenge",
		Summary:     "Scheduler state and visible challenge",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ChallengeView `json:"body"`
	}, error) {
		return &struct {
			Body ChallengeView `json:"body"`
		}{Body: ChallengeView{State: sched.State(), Challenge: sched.Current()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond-challenge",
		Method:      http.MethodPost,
		Path:        "/challenge/response",
		Summary:     "Answer the visible challenge",
	}, func(ctx context.Context, input *struct {
		LearnerID string `header:"X-Learner-Id"`
		Body      ChallengeResponseRequest
	}) (*struct {
		Body ChallengeResolution `json:"body"`
	}, error) {
		c, err := sched.Respond(ctx, input.Body.Text, learner(input.LearnerID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChallengeResolution `json:"body"`
		}{Body: ChallengeResolution{Resolved: c != nil, Challenge: c, Credibility: e.Store.CredibilityScore()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dismiss-challenge",
		Method:      http.MethodPost,
		Path:        "/challenge/dismiss",
		Summary:     "Dismiss the visible challenge",
	}, func(ctx context.Context, input *struct {
		LearnerID string `header:"X-Learner-Id"`
	}) (*struct {
		Body ChallengeResolution `json:"body"`
	}, error) {
		c, err := sched.Dismiss(ctx, learner(input.LearnerID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChallengeResolution `json:"body"`
		}{Body: ChallengeResolution{Resolved: c != nil, Challenge: c, Credibility: e.Store.CredibilityScore()}}, nil
	})
}

func registerSnapshots(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-snapshots",
		Method:      http.MethodGet,
		Path:        "/snapshots",
		Summary:     "List saved snapshots",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.SnapshotInfo `json:"body"`
	}, error) {
		items, err := e.Repo.ListSnapshots(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.SnapshotInfo `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "save-snapshot",
		Method:        http.MethodPost,
		Path:          "/snapshots/{snapshot_id}",
		Summary:       "Persist the current answer store",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		SnapshotID string `path:"snapshot_id"`
		LearnerID  string `header:"X-Learner-Id"`
	}) (*struct {
		Body domain.SnapshotInfo `json:"body"`
	}, error) {
		if err := e.SaveSnapshot(ctx, input.SnapshotID, learner(input.LearnerID)); err != nil {
			return nil, handleError(err)
		}
		snap, err := e.Repo.GetSnapshot(ctx, input.SnapshotID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SnapshotInfo `json:"body"`
		}{Body: domain.SnapshotInfo{ID: snap.ID, Bytes: len(snap.Data), CreatedAt: snap.CreatedAt, UpdatedAt: snap.UpdatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "load-snapshot",
		Method:      http.MethodPost,
		Path:        "/snapshots/{snapshot_id}/load",
		Summary:     "Replace the answer store from a snapshot",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SnapshotID string `path:"snapshot_id"`
		LearnerID  string `header:"X-Learner-Id"`
	}) (*struct {
		Body StoreResponse `json:"body"`
	}, error) {
		if err := e.LoadSnapshot(ctx, input.SnapshotID, learner(input.LearnerID)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoreResponse `json:"body"`
		}{Body: storeResponse(e.Store)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-snapshot",
		Method:      http.MethodDelete,
		Path:        "/snapshots/{snapshot_id}",
		Summary:     "Delete a snapshot",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SnapshotID string `path:"snapshot_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteSnapshot(ctx, input.SnapshotID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent activity log entries",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"1" maximum:"500"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
