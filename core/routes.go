package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/http1-server/core/http"
	"github.com/searchktools/http1-server/core/observability"
	"github.com/searchktools/http1-server/core/static"
	"github.com/searchktools/http1-server/core/upload"
	"github.com/searchktools/http1-server/logging"
)

// route dispatches a validated request. Routing failures are ordinary
// responses and leave the connection reusable.
func (s *Server) route(req *http.Request, log logrus.FieldLogger) *http.Response {
	if req.Method == "OPTIONS" {
		return s.preflight(req)
	}

	var resp *http.Response
	switch req.Method {
	case "GET":
		resp = s.get(req, log)
	case "POST":
		resp = s.post(req, log)
	default:
		resp = http.NotAllowed(AllowedMethods)
	}

	if h := s.cfg.CORS.ForRequest(req); h != nil {
		for _, f := range h.Fields() {
			resp.Header.Set(f.Name, f.Value)
		}
	}
	return resp
}

func (s *Server) preflight(req *http.Request) *http.Response {
	status, h := s.cfg.CORS.Preflight(req)
	resp := &http.Response{Status: status, Header: h}
	switch status {
	case 400:
		resp.Body = []byte("Missing Origin header")
	case 403:
		resp.Body = []byte("Origin not allowed")
	}
	return resp
}

func (s *Server) get(req *http.Request, log logrus.FieldLogger) *http.Response {
	switch req.CleanPath() {
	case PathMetrics, PathMetricsJSON:
		return s.metricsPage(req, log)
	case PathDashboard, PathDashboardJSON:
		return s.dashboardPage(req, log)
	}

	f, err := s.resolver.Load(req.Path)
	if err != nil {
		return s.resolveFailed(req, err, log)
	}
	resp := http.NewResponse(200, f.Body)
	resp.Header.Set(http.HeaderContentType, f.ContentType)
	if f.Disposition != "" {
		resp.Header.Set(http.HeaderContentDisposition, f.Disposition)
	}
	return resp
}

func (s *Server) resolveFailed(req *http.Request, err error, log logrus.FieldLogger) *http.Response {
	var re *static.ResolveError
	if !errors.As(err, &re) {
		log.WithError(err).WithField("path", req.Path).Error("resolve failed")
		return http.Text(500, "Internal Server Error")
	}

	switch {
	case re.Traversal():
		line := req.RequestLine()
		logging.Violation(log, req.RemoteAddr, line, re.Reason)
		s.dashboard.Record(observability.SecurityEvent{
			Type:     observability.EventPathTraversal,
			ClientIP: req.ClientIP(),
			Blocked:  true,
			Details:  map[string]string{"reason": re.Reason, "request": line},
		})
	case re.Kind == static.ReadFailed:
		log.WithError(err).WithField("path", req.Path).Error("file read failed")
	}
	return http.Text(re.Status(), re.Reason)
}

// wantsJSON reports whether a page should be rendered as JSON: the
// client accepts it or asked for the .json path.
func wantsJSON(req *http.Request, jsonPath string) bool {
	if req.CleanPath() == jsonPath {
		return true
	}
	return strings.Contains(strings.ToLower(req.Header.Get(http.HeaderAccept)), mediaJSON)
}

func (s *Server) metricsPage(req *http.Request, log logrus.FieldLogger) *http.Response {
	var (
		buf   bytes.Buffer
		ctype string
		err   error
	)
	if wantsJSON(req, PathMetricsJSON) {
		stats := s.pool.Stats()
		err = s.metrics.WriteJSON(&buf, &stats)
		ctype = contentTypeJSONUTF8
	} else {
		format := observability.ExpositionFormat(req.Header.Get(http.HeaderAccept))
		err = s.metrics.WritePrometheus(&buf, format)
		ctype = string(format)
	}
	if err != nil {
		log.WithError(err).Error("render metrics")
		return http.Text(500, "Internal Server Error")
	}
	return noCache(buf.Bytes(), ctype)
}

func (s *Server) dashboardPage(req *http.Request, log logrus.FieldLogger) *http.Response {
	var (
		buf   bytes.Buffer
		ctype string
		err   error
	)
	if wantsJSON(req, PathDashboardJSON) {
		err = s.dashboard.WriteJSON(&buf)
		ctype = contentTypeJSONUTF8
	} else {
		err = s.dashboard.WriteHTML(&buf)
		ctype = "text/html; charset=utf-8"
	}
	if err != nil {
		log.WithError(err).Error("render security dashboard")
		return http.Text(500, "Internal Server Error")
	}
	return noCache(buf.Bytes(), ctype)
}

func noCache(body []byte, ctype string) *http.Response {
	resp := http.NewResponse(200, body)
	resp.Header.Set(http.HeaderContentType, ctype)
	resp.Header.Set(http.HeaderCacheControl, "no-cache")
	return resp
}

// post stores a JSON upload. The media type is checked before the path.
func (s *Server) post(req *http.Request, log logrus.FieldLogger) *http.Response {
	if req.MediaType() != mediaJSON {
		return http.Text(415, "Only application/json accepted")
	}
	if strings.TrimRight(req.CleanPath(), "/") != PathUpload {
		return http.Text(404, "Not Found")
	}

	res, err := s.uploads.Save(req.Body)
	if errors.Is(err, upload.ErrInvalidJSON) {
		return http.Text(400, "Invalid JSON")
	}
	if err != nil {
		log.WithError(err).Error("store upload")
		return http.Text(500, "Internal Server Error")
	}
	body, err := json.Marshal(res)
	if err != nil {
		log.WithError(err).Error("encode upload result")
		return http.Text(500, "Internal Server Error")
	}
	log.WithField("file", res.Name).Info("upload stored")

	resp := http.NewResponse(201, body)
	resp.Header.Set(http.HeaderContentType, contentTypeJSONUTF8)
	return resp
}
