// Package serve exposes a bundle over HTTP.
//
//	GET  /ping      liveness
//	GET  /metadata  bundle.Info as JSON
//	POST /predict   {"rows": [{"col": value, ...}, ...]}
//	GET  /metrics   Prometheus metrics of this handler
package serve

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YuminosukeSato/tidytune/bundle"
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/modelspec"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
)

// Options configures NewHandler.
type Options struct {
	Logger log.Logger
	// Registry receives the handler's metrics; a new one is created when nil.
	Registry *prometheus.Registry
	// MaxRows bounds the rows of one request. Default 10000.
	MaxRows int
	// MaxBodyBytes bounds the request body. Default 8 MiB.
	MaxBodyBytes int64
}

type server struct {
	b       *bundle.Bundle
	opts    Options
	logger  log.Logger
	reqs    *prometheus.CounterVec
	latency *prometheus.HistogramVec
	rows    prometheus.Counter
}

// NewHandler returns the routes for b.
func NewHandler(b *bundle.Bundle, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.MaxRows == 0 {
		opts.MaxRows = 10000
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 8 << 20
	}
	factory := promauto.With(opts.Registry)
	labels := prometheus.Labels{"bundle": b.Name, "version": b.Version}
	s := &server{
		b:      b,
		opts:   opts,
		logger: opts.Logger.With(log.ComponentKey, "serve", log.WorkflowIDKey, b.Workflow.WorkflowID),
		reqs: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "tidytune_requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: labels,
		}, []string{"route", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "tidytune_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"route"}),
		rows: factory.NewCounter(prometheus.CounterOpts{
			Name:        "tidytune_predicted_rows_total",
			Help:        "Rows predicted.",
			ConstLabels: labels,
		}),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.instrument)
	r.Get("/ping", s.ping)
	r.Get("/metadata", s.metadata)
	r.Post("/predict", s.predict)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	return r
}

func (s *server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.reqs.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		s.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (s *server) ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) metadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.b.Info())
}

// PredictRequest is the body of POST /predict. Values are JSON numbers for
// numeric predictors, strings for nominal ones, and null for missing.
type PredictRequest struct {
	Rows []map[string]any `json:"rows"`
}

// Prediction is one row of the response.
type Prediction struct {
	Estimate *float64           `json:"estimate,omitempty"`
	Class    string             `json:"class,omitempty"`
	Prob     map[string]float64 `json:"prob,omitempty"`
}

// PredictResponse is the body returned by POST /predict.
type PredictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *server) predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "no rows"})
		return
	}
	if len(req.Rows) > s.opts.MaxRows {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "too many rows"})
		return
	}

	frame, err := rowsToFrame(req.Rows, s.b.Predictors)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	pred, err := s.b.Predict(frame)
	if err != nil {
		status := http.StatusInternalServerError
		var de *errors.DataShapeError
		if errors.As(err, &de) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Warn("prediction failed", "error", err)
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}

	resp := PredictResponse{Predictions: make([]Prediction, len(req.Rows))}
	fitted := s.b.Workflow
	for i := range resp.Predictions {
		if fitted.Mode == modelspec.Regression {
			v := pred.Numeric[i]
			resp.Predictions[i].Estimate = &v
			continue
		}
		p := Prediction{Class: fitted.Label(pred.Class[i])}
		if pred.Prob != nil {
			p.Prob = make(map[string]float64, len(fitted.Levels))
			for j, l := range fitted.Levels {
				p.Prob[l] = pred.Prob.At(i, j)
			}
		}
		resp.Predictions[i] = p
	}
	s.rows.Add(float64(len(req.Rows)))
	writeJSON(w, http.StatusOK, resp)
}

// rowsToFrame builds a frame from JSON objects. A column is numeric when
// every non-null value is a number and nominal when every one is a string.
func rowsToFrame(rows []map[string]any, names []string) (*dataset.Frame, error) {
	cols := make([]*dataset.Column, 0, len(names))
	for _, name := range names {
		var numeric, nominal bool
		for i, row := range rows {
			v, ok := row[name]
			if !ok {
				return nil, errors.NewMissingColumnError("predict", name)
			}
			switch v.(type) {
			case nil:
			case float64:
				numeric = true
			case string:
				nominal = true
			default:
				return nil, errors.NewDataShapeError("predict", name, "row "+strconv.Itoa(i)+" holds neither a number nor a string")
			}
		}
		if numeric && nominal {
			return nil, errors.NewDataShapeError("predict", name, "mixes numbers and strings")
		}
		if nominal {
			strs := make([]string, len(rows))
			for i, row := range rows {
				strs[i], _ = row[name].(string)
			}
			cols = append(cols, dataset.NewNominal(name, strs))
			continue
		}
		nums := make([]float64, len(rows))
		for i, row := range rows {
			if v, ok := row[name].(float64); ok {
				nums[i] = v
			} else {
				nums[i] = math.NaN()
			}
		}
		cols = append(cols, dataset.NewNumeric(name, nums))
	}
	return dataset.NewFrame(cols...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
