package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"github.com/agimus-project/agimus/discretization"
	"github.com/agimus-project/agimus/fieldofview"
	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/utils"
)

// DefaultAddress is the address the HTTP API listens on by default.
const DefaultAddress = "localhost:8090"

// DebugHeader turns on debug logging for the work triggered by a request. Its value is used as
// the debug key; an empty value picks a random one.
const DebugHeader = "X-Agimus-Debug"

// Options configure the HTTP API.
type Options struct {
	Address string `json:"address"`
	// CORS allows requests from any origin.
	CORS bool `json:"cors"`
}

// Server is the servant of the plugin. It serves the HTTP API.
type Server struct {
	c       Components
	opts    Options
	workers *utils.StoppableWorkers
	handler http.Handler
	logger  logging.Logger
}

func newServer(c Components, opts Options, logger logging.Logger) *Server {
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	s := &Server{
		c:       c,
		opts:    opts,
		workers: utils.NewStoppableWorkers(context.Background()),
		logger:  logger,
	}
	mux := s.initMux()
	mux.Use(debugMiddleware)
	s.handler = mux
	if opts.CORS {
		s.handler = cors.AllowAll().Handler(mux)
	}
	return s
}

// GetDiscretization returns a new discretization of the robot of the problem.
func (s *Server) GetDiscretization() *discretization.Discretization {
	return discretization.New(s.c.Problem.Robot(), s.c.Bus, s.logger.Sublogger("discretization"))
}

// Components returns the services the server exposes.
func (s *Server) Components() Components {
	return s.c
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on the configured address and serves the API until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return errors.Wrapf(err, "cannot listen on %s", s.opts.Address)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves the API on ln until ctx is done. ln is closed when it returns.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stopped := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(stopped)
		<-ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorw("error shutting down", "error", err)
		}
	})
	s.logger.Infow("serving", "address", ln.Addr().String())
	err := httpServer.Serve(ln)
	<-stopped
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the background jobs and the point cloud subscription.
func (s *Server) Close() error {
	s.workers.Stop()
	return s.c.PointCloud.Close()
}

func (s *Server) initMux() *goji.Mux {
	mux := goji.NewMux()

	target := goji.SubMux()
	mux.Handle(pat.New("/hpp/target/*"), target)
	target.HandleFunc(pat.Post("/set_joint_names"), s.setJointNames)
	target.HandleFunc(pat.Post("/add_operational_frame"), s.addOperationalFrame(discretization.Position))
	target.HandleFunc(pat.Post("/add_operational_frame_velocity"), s.addOperationalFrame(discretization.Derivative))
	target.HandleFunc(pat.Post("/add_center_of_mass"), s.addCenterOfMass(discretization.Position))
	target.HandleFunc(pat.Post("/add_center_of_mass_velocity"), s.addCenterOfMass(discretization.Derivative))
	target.HandleFunc(pat.Post("/reset_topics"), s.resetTopics)
	target.HandleFunc(pat.Post("/read_path"), s.readPath)
	target.HandleFunc(pat.Post("/read_subpath"), s.readSubPath)
	target.HandleFunc(pat.Post("/publish"), s.publish)
	target.HandleFunc(pat.Post("/publish_first"), s.publishFirst)
	target.HandleFunc(pat.Get("/get_queue_size"), s.getQueueSize)

	mux.HandleFunc(pat.Get("/field_of_view/feature_groups"), s.featureGroups)
	mux.HandleFunc(pat.Post("/field_of_view/feature_groups"), s.addFeatureGroup)
	mux.HandleFunc(pat.Delete("/field_of_view/feature_groups"), s.resetFeatureGroups)
	mux.HandleFunc(pat.Get("/field_of_view/clogged"), s.clogged)

	mux.HandleFunc(pat.Post("/point_cloud/build"), s.buildPointCloud)
	mux.HandleFunc(pat.Get("/obstacles"), s.obstacles)
	mux.HandleFunc(pat.Get("/topics"), s.topics)
	return mux
}

// successResponse mirrors the boolean answer of the ROS services.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type jobResponse struct {
	Job string `json:"job"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugw("error writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decode reads the JSON body of r into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

func debugMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if values, ok := r.Header[http.CanonicalHeaderKey(DebugHeader)]; ok {
			key := ""
			if len(values) > 0 {
				key = values[0]
			}
			r = r.WithContext(logging.EnableDebugMode(r.Context(), key))
		}
		next.ServeHTTP(w, r)
	})
}

// runJob runs f in the background and answers with the id of the job. The job outlives r but
// keeps its debug key.
func (s *Server) runJob(w http.ResponseWriter, r *http.Request, name string, f func(ctx context.Context) error) {
	id := uuid.NewString()
	debugKey := logging.DebugKey(r.Context())
	started := s.workers.Add(func(ctx context.Context) {
		if debugKey != "" {
			ctx = logging.EnableDebugMode(ctx, debugKey)
		}
		if err := f(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Errorw("job failed", "job", name, "id", id, "error", err)
			return
		}
		s.logger.Debugw("job done", "job", name, "id", id)
	})
	if !started {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("server is closed"))
		return
	}
	s.writeJSON(w, http.StatusAccepted, jobResponse{Job: id})
}

type jointNamesRequest struct {
	Names []string `json:"names"`
}

func (s *Server) setJointNames(w http.ResponseWriter, r *http.Request) {
	var req jointNamesRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.c.Discretization.SetJointNames(req.Names); err != nil {
		s.writeJSON(w, http.StatusOK, successResponse{Success: false, Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type nameRequest struct {
	Name   string   `json:"name"`
	Frames []string `json:"frames,omitempty"`
}

func (s *Server) addOperationalFrame(option discretization.ComputationOption) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nameRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		ok := s.c.Discretization.AddOperationalFrame(req.Name, option)
		if !ok {
			s.logger.Errorw("Could not add operational frame", "name", req.Name)
		}
		s.writeJSON(w, http.StatusOK, successResponse{Success: ok})
	}
}

func (s *Server) addCenterOfMass(option discretization.ComputationOption) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nameRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeJSON(w, http.StatusOK, successResponse{Success: s.c.Discretization.AddCenterOfMass(req.Name, req.Frames, option)})
	}
}

func (s *Server) resetTopics(w http.ResponseWriter, r *http.Request) {
	s.c.Discretization.ResetTopics()
	s.logger.Info("Reset topics")
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type readPathRequest struct {
	ID     int     `json:"id"`
	Start  float64 `json:"start"`
	Length float64 `json:"length"`
}

func (s *Server) readPath(w http.ResponseWriter, r *http.Request) {
	var req readPathRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.c.Problem.Path(req.ID); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.runJob(w, r, "read_path", func(ctx context.Context) error {
		return s.c.Publisher.Read(ctx, req.ID)
	})
}

func (s *Server) readSubPath(w http.ResponseWriter, r *http.Request) {
	var req readPathRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.c.Problem.Path(req.ID); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.runJob(w, r, "read_subpath", func(ctx context.Context) error {
		return s.c.Publisher.ReadSub(ctx, req.ID, req.Start, req.Length)
	})
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, r, "publish", s.c.Publisher.Publish)
}

func (s *Server) publishFirst(w http.ResponseWriter, r *http.Request) {
	if err := s.c.Publisher.PublishFirst(r.Context()); err != nil {
		s.writeJSON(w, http.StatusOK, successResponse{Success: false, Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type intResponse struct {
	Value int `json:"value"`
}

func (s *Server) getQueueSize(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, intResponse{Value: s.c.Publisher.QueueSize()})
}

// FeatureJSON is the JSON form of a feature.
type FeatureJSON struct {
	Name string  `json:"name"`
	Size float64 `json:"size"`
}

// FeatureGroupJSON is the JSON form of a feature group.
type FeatureGroupJSON struct {
	VisibilityThreshold int           `json:"visibility_threshold"`
	DepthMargin         float64       `json:"depth_margin"`
	SizeMargin          float64       `json:"size_margin"`
	Features            []FeatureJSON `json:"features"`
}

// ToFeatureGroup converts the JSON form into a feature group.
func (g FeatureGroupJSON) ToFeatureGroup() *fieldofview.FeatureGroup {
	group := fieldofview.NewFeatureGroup(g.VisibilityThreshold, g.DepthMargin, g.SizeMargin)
	for _, f := range g.Features {
		group.AddFeature(fieldofview.NewFeature(f.Name, f.Size))
	}
	return group
}

// NewFeatureGroupJSON converts a feature group into its JSON form.
func NewFeatureGroupJSON(g *fieldofview.FeatureGroup) FeatureGroupJSON {
	out := FeatureGroupJSON{
		VisibilityThreshold: g.VisibilityThreshold,
		DepthMargin:         g.DepthMargin,
		SizeMargin:          g.SizeMargin,
		Features:            []FeatureJSON{},
	}
	for _, f := range g.Features() {
		out.Features = append(out.Features, FeatureJSON{Name: f.Name(), Size: f.Size()})
	}
	return out
}

type featureGroupsResponse struct {
	Groups []FeatureGroupJSON `json:"groups"`
	// Visible is the number of visible features of each group.
	Visible []int `json:"visible"`
}

func (s *Server) featureGroups(w http.ResponseWriter, r *http.Request) {
	resp := featureGroupsResponse{Groups: []FeatureGroupJSON{}, Visible: []int{}}
	for _, g := range s.c.FieldOfView.FeatureGroups() {
		if g == nil {
			continue
		}
		resp.Groups = append(resp.Groups, NewFeatureGroupJSON(g))
		resp.Visible = append(resp.Visible, s.c.FieldOfView.NumberVisibleFeature(g))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) addFeatureGroup(w http.ResponseWriter, r *http.Request) {
	var req FeatureGroupJSON
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.c.FieldOfView.AddFeatureGroup(req.ToFeatureGroup())
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) resetFeatureGroups(w http.ResponseWriter, r *http.Request) {
	s.c.FieldOfView.ResetFeatureGroups()
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type cloggedResponse struct {
	Clogged bool `json:"clogged"`
}

func (s *Server) clogged(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, cloggedResponse{Clogged: s.c.FieldOfView.Clogged()})
}

type buildPointCloudRequest struct {
	OctreeFrame   string    `json:"octree_frame"`
	Topic         string    `json:"topic"`
	SensorFrame   string    `json:"sensor_frame"`
	Resolution    float64   `json:"resolution"`
	Configuration []float64 `json:"configuration,omitempty"`
	// TimeoutSeconds defaults to one second.
	TimeoutSeconds float64 `json:"timeout_seconds"`
	NewPointCloud  bool    `json:"new_point_cloud"`
}

func (req buildPointCloudRequest) validate() error {
	var err error
	if req.OctreeFrame == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError("", "octree_frame"))
	}
	if req.Topic == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError("", "topic"))
	}
	if req.SensorFrame == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError("", "sensor_frame"))
	}
	if req.TimeoutSeconds < 0 {
		err = multierr.Append(err, errors.Errorf("invalid timeout %g", req.TimeoutSeconds))
	}
	return err
}

func (s *Server) buildPointCloud(w http.ResponseWriter, r *http.Request) {
	var req buildPointCloudRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	q := req.Configuration
	if q == nil {
		q = s.c.Problem.CurrentConfiguration()
	}
	timeout := time.Second
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds * float64(time.Second))
	}
	err := s.c.PointCloud.BuildPointCloud(r.Context(), req.OctreeFrame, req.Topic, req.SensorFrame,
		req.Resolution, q, timeout, req.NewPointCloud)
	if err != nil {
		s.writeJSON(w, http.StatusOK, successResponse{Success: false, Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type namesResponse struct {
	Names []string `json:"names"`
}

func (s *Server) obstacles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, namesResponse{Names: s.c.Problem.Obstacles()})
}

func (s *Server) topics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, namesResponse{Names: s.c.Bus.Topics()})
}
