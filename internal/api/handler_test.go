package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debtor-import/internal/api"
	"debtor-import/internal/config"
	"debtor-import/internal/db"
	"debtor-import/internal/fieldtype"
	"debtor-import/internal/mapping"
	"debtor-import/internal/model"
	"debtor-import/internal/storage"
	pkgerrors "debtor-import/pkg/errors"
)

type fakeRepo struct {
	db.Repository

	templates map[int64]*mapping.Template
	files     []*model.ImportFile
	status    *model.StatusResponse
}

func (r *fakeRepo) GetTemplate(_ context.Context, id int64) (*mapping.Template, error) {
	tpl, ok := r.templates[id]
	if !ok {
		return nil, pkgerrors.ErrTemplateNotFound
	}
	return tpl, nil
}

func (r *fakeRepo) CreateTemplate(_ context.Context, tpl *mapping.Template) (int64, error) {
	for _, existing := range r.templates {
		if existing.Name == tpl.Name {
			return 0, pkgerrors.ErrDuplicateTemplate
		}
	}
	id := int64(len(r.templates) + 1)
	r.templates[id] = tpl
	return id, nil
}

func (r *fakeRepo) UpdateTemplate(_ context.Context, tpl *mapping.Template) error {
	if _, ok := r.templates[tpl.ID]; !ok {
		return pkgerrors.ErrTemplateNotFound
	}
	r.templates[tpl.ID] = tpl
	return nil
}

func (r *fakeRepo) CreateFile(_ context.Context, file *model.ImportFile) (int64, error) {
	r.files = append(r.files, file)
	return int64(len(r.files)), nil
}

func (r *fakeRepo) GetImportStatus(_ context.Context, fileID int64, _ int) (*model.StatusResponse, error) {
	if r.status == nil || r.status.FileID != fileID {
		return nil, pkgerrors.ErrFileNotFound
	}
	return r.status, nil
}

type fakeStorage struct {
	storage.Storage
	objects map[string][]byte
}

func (s *fakeStorage) Upload(_ context.Context, key string, data io.ReadSeeker, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.objects[key] = b
	return nil
}

type fakeProducer struct {
	jobs []model.ImportJob
}

func (p *fakeProducer) EnqueueImportJob(_ context.Context, job model.ImportJob) error {
	p.jobs = append(p.jobs, job)
	return nil
}

type server struct {
	repo     *fakeRepo
	storage  *fakeStorage
	producer *fakeProducer
	router   *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Parse([]byte("server:\n  preview_row_limit: 3\n"))
	require.NoError(t, err)

	s := &server{
		repo: &fakeRepo{templates: map[int64]*mapping.Template{
			1: {
				ID:      1,
				Name:    "debtors",
				Headers: []string{"Name", "Age"},
				Mapping: []mapping.MappingField{
					{Column: 0, Value: "fullName"},
					{Column: 1, Value: "age", Type: fieldtype.Integer},
				},
			},
		}},
		storage:  &fakeStorage{objects: map[string][]byte{}},
		producer: &fakeProducer{},
	}
	handler := api.NewHandler(s.repo, s.storage, s.producer, cfg)
	s.router = api.NewRouter(handler, cfg.Server.MaxUploadSize)
	return s
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthCheck(t *testing.T) {
	s := newServer(t)
	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

type statsProducer struct {
	fakeProducer
	pending, dead int64
	err           error
}

func (p *statsProducer) Pending(context.Context) (int64, error) { return p.pending, p.err }

func (p *statsProducer) DeadLetterCount(context.Context) (int64, error) { return p.dead, p.err }

func TestHealthCheck_QueueDepth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg, err := config.Parse(nil)
	require.NoError(t, err)

	producer := &statsProducer{pending: 4, dead: 1}
	router := api.NewRouter(api.NewHandler(&fakeRepo{}, &fakeStorage{}, producer, cfg), cfg.Server.MaxUploadSize)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queue":{"dead_letter":1,"pending":4}`)

	producer.err = errors.New("connection refused")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUploadImport(t *testing.T) {
	s := newServer(t)
	req := uploadRequest(t, map[string]string{"template_id": "1", "uploaded_by": "ops"}, "debtors.csv", "Name,Age\nAlice,30\n")

	w := s.do(req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Len(t, s.producer.jobs, 1)
	job := s.producer.jobs[0]
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, int64(1), job.FileID)
	assert.Equal(t, "field_type", job.Strategy)
	assert.True(t, strings.HasSuffix(job.S3Path, job.JobID+"-debtors.csv"))
	assert.Equal(t, "Name,Age\nAlice,30\n", string(s.storage.objects[job.S3Path]))

	require.Len(t, s.repo.files, 1)
	assert.Equal(t, model.FileStatusUploaded, s.repo.files[0].Status)
	assert.Equal(t, "ops", s.repo.files[0].UploadedBy)
}

func TestUploadImport_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		code     int
	}{
		{"bad template id", map[string]string{"template_id": "x"}, "a.csv", http.StatusBadRequest},
		{"missing file", map[string]string{"template_id": "1"}, "", http.StatusBadRequest},
		{"unsupported format", map[string]string{"template_id": "1"}, "a.pdf", http.StatusBadRequest},
		{"unknown template", map[string]string{"template_id": "9"}, "a.csv", http.StatusNotFound},
		{"unknown strategy", map[string]string{"template_id": "1", "strategy": "magic"}, "a.csv", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)
			w := s.do(uploadRequest(t, tt.fields, tt.filename, "Name\n"))
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Empty(t, s.producer.jobs)
		})
	}
}

func TestGetImportStatus(t *testing.T) {
	s := newServer(t)
	s.repo.status = &model.StatusResponse{
		FileID:       5,
		Status:       model.FileStatusCompleted,
		TotalRows:    2,
		AcceptedRows: 1,
		RejectedRows: 1,
		Rejected: []model.RejectedRowView{
			{LineNumber: 3, Errors: map[string]string{"age": "must be an integer"}},
		},
	}

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/imports/5/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got model.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, model.FileStatusCompleted, got.Status)
	assert.Equal(t, "must be an integer", got.Rejected[0].Errors["age"])

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/imports/6/status", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/imports/x/status", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateTemplate(t *testing.T) {
	s := newServer(t)
	body := `{"name":"phones","headers":["Phones"],"mapping":[{"column":0,"value":"mobilePhones","type":"json"}]}`

	req := jsonRequest(http.MethodPost, "/api/v1/templates", body)
	req.Header.Set("X-User", "ops")
	w := s.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got mapping.Template
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, "ops", got.CreatedBy)
	assert.Equal(t, fieldtype.JSON, got.Mapping[0].Type)

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/templates", body))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateTemplate_Invalid(t *testing.T) {
	s := newServer(t)

	w := s.do(jsonRequest(http.MethodPost, "/api/v1/templates", `{"name":"x"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// column 3 lies beyond the two declared headers
	body := `{"name":"x","headers":["A","B"],"mapping":[{"column":3,"value":"a"}]}`
	w = s.do(jsonRequest(http.MethodPost, "/api/v1/templates", body))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetAndUpdateTemplate(t *testing.T) {
	s := newServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/templates/1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"debtors"`)

	body := `{"name":"debtors","headers":["Name"],"mapping":[{"column":0,"value":"fullName"}]}`
	w = s.do(jsonRequest(http.MethodPut, "/api/v1/templates/1", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"Name"}, s.repo.templates[1].Headers)

	w = s.do(jsonRequest(http.MethodPut, "/api/v1/templates/8", body))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/templates/8", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreview(t *testing.T) {
	s := newServer(t)
	body := `{"template_id":1,"rows":[["Alice",30],{"name":"Bob","AGE":"abc"},["Carol"]]}`

	w := s.do(jsonRequest(http.MethodPost, "/api/v1/imports/preview", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got model.PreviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "field_type", got.Strategy)
	assert.Equal(t, 2, got.Accepted)
	assert.Equal(t, 1, got.Rejected)

	require.Len(t, got.Rows, 3)
	assert.Equal(t, 2, got.Rows[0].LineNumber)
	assert.True(t, got.Rows[0].Accepted)
	assert.Equal(t, "Alice", got.Rows[0].Record["fullName"])
	assert.False(t, got.Rows[1].Accepted)
	assert.Equal(t, "must be an integer", got.Rows[1].Errors["age"])
	assert.True(t, got.Rows[2].Accepted)
}

func TestPreview_Limits(t *testing.T) {
	s := newServer(t)

	w := s.do(jsonRequest(http.MethodPost, "/api/v1/imports/preview", `{"template_id":1,"rows":[[],[],[],[]]}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/imports/preview", `{"template_id":1,"rows":["x"]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/imports/preview", `{"template_id":1,"strategy":"magic","rows":[[]]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t)
	w := s.do(httptest.NewRequest(http.MethodOptions, "/api/v1/templates", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
