package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"carousel/internal/catalog"
	"carousel/internal/daemon"
	"carousel/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Carousel", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun carousel daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func convertSession(session *catalog.Session) Session {
	return Session{
		ID:              session.ID,
		Provider:        string(session.Provider),
		PickerSessionID: session.PickerSessionID,
		Label:           session.Label,
		Status:          string(session.Status),
		Total:           session.Counts.Total,
		Imported:        session.Counts.Imported,
		Dup:             session.Counts.Dup,
		Failed:          session.Counts.Failed,
		Expired:         session.Counts.Expired,
		Skipped:         session.Counts.Skipped,
		ErrorMessage:    session.ErrorMessage,
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
		FinishedAt:      session.FinishedAt,
	}
}

func convertSelection(sel *catalog.Selection) Selection {
	return Selection{
		ID:           sel.ID,
		SessionID:    sel.SessionID,
		SourceRef:    sel.SourceRef,
		FileName:     sel.FileName,
		MimeType:     sel.MimeType,
		ByteSize:     sel.ByteSize,
		Status:       string(sel.Status),
		Attempts:     sel.Attempts,
		LockedBy:     sel.LockedBy,
		ErrorMessage: sel.ErrorMessage,
		MediaID:      sel.MediaID,
		EnqueuedAt:   sel.EnqueuedAt,
		StartedAt:    sel.StartedAt,
		FinishedAt:   sel.FinishedAt,
	}
}

func convertTransitions(records []*catalog.Transition) []Transition {
	out := make([]Transition, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		out = append(out, Transition{
			Entity:     rec.Entity,
			EntityID:   rec.EntityID,
			FromStatus: rec.FromStatus,
			ToStatus:   rec.ToStatus,
			Reason:     rec.Reason,
			Forced:     rec.Forced,
			CreatedAt:  rec.CreatedAt,
		})
	}
	return out
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockFilePath
	resp.CatalogDBPath = status.CatalogDBPath
	resp.Workers = status.Importer.Workers
	resp.LastError = status.Importer.LastError
	if status.Importer.LastSelection != nil {
		item := convertSelection(status.Importer.LastSelection)
		resp.LastItem = &item
	}
	resp.ItemStats = make(map[string]int, len(status.Importer.Stats))
	for k, v := range status.Importer.Stats {
		resp.ItemStats[string(k)] = v
	}
	resp.SessionStats = make(map[string]int, len(status.SessionStats))
	for k, v := range status.SessionStats {
		resp.SessionStats[string(k)] = v
	}
	resp.WatchdogRuns = status.Watchdog.Sweeps
	resp.LastSweep = status.Watchdog.LastSweep
	resp.DropScanning = status.DropScanning
	resp.ThumbsRunning = status.ThumbsRunning
	return nil
}

func (s *service) SessionList(req SessionListRequest, resp *SessionListResponse) error {
	sessions, err := s.daemon.ListSessions(s.ctx, req.Statuses)
	if err != nil {
		return err
	}
	resp.Sessions = make([]Session, 0, len(sessions))
	for _, session := range sessions {
		if session == nil {
			continue
		}
		resp.Sessions = append(resp.Sessions, convertSession(session))
	}
	return nil
}

func (s *service) SessionShow(req SessionShowRequest, resp *SessionShowResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid session id %d", req.ID)
	}
	detail, err := s.daemon.Session(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Session = convertSession(detail.Session)
	resp.Items = make([]Selection, 0, len(detail.Selections))
	for _, sel := range detail.Selections {
		resp.Items = append(resp.Items, convertSelection(sel))
	}
	resp.Transitions = convertTransitions(detail.Transitions)
	return nil
}

func (s *service) SessionAdd(req SessionAddRequest, resp *SessionAddResponse) error {
	session, err := s.daemon.AddPickerSession(s.ctx, req.PickerSessionID, req.Label)
	if err != nil {
		return err
	}
	resp.Session = convertSession(session)
	return nil
}

func (s *service) SessionCancel(req SessionCancelRequest, resp *SessionCancelResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid session id %d", req.ID)
	}
	if err := s.daemon.CancelSession(s.ctx, req.ID, req.Reason); err != nil {
		return err
	}
	resp.Canceled = true
	return nil
}

func (s *service) SessionRetry(req SessionRetryRequest, resp *SessionRetryResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid session id %d", req.ID)
	}
	requeued, err := s.daemon.RetrySession(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Requeued = requeued
	return nil
}

func (s *service) SessionValidate(req SessionValidateRequest, resp *SessionValidateResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid session id %d", req.ID)
	}
	report, err := s.daemon.ValidateSession(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Consistent = report.Consistent()
	resp.SessionStatus = string(report.SessionStatus)
	resp.Issues = make([]ValidationIssue, 0, len(report.Issues))
	for _, issue := range report.Issues {
		resp.Issues = append(resp.Issues, ValidationIssue{Code: string(issue.Code), Detail: issue.Detail})
	}
	resp.Recommendations = report.Recommendations
	return nil
}

func (s *service) ItemList(req ItemListRequest, resp *ItemListResponse) error {
	items, err := s.daemon.ListSelections(s.ctx, req.Statuses)
	if err != nil {
		return err
	}
	resp.Items = make([]Selection, 0, len(items))
	for _, sel := range items {
		if sel == nil {
			continue
		}
		resp.Items = append(resp.Items, convertSelection(sel))
	}
	return nil
}

func (s *service) ItemShow(req ItemShowRequest, resp *ItemShowResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid item id %d", req.ID)
	}
	sel, transitions, err := s.daemon.Selection(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Item = convertSelection(sel)
	resp.Transitions = convertTransitions(transitions)
	return nil
}

func (s *service) ItemRetry(req ItemRetryRequest, resp *ItemRetryResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid item id %d", req.ID)
	}
	if err := s.daemon.RetrySelection(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Requeued = true
	return nil
}

func (s *service) ItemSkip(req ItemSkipRequest, resp *ItemSkipResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid item id %d", req.ID)
	}
	if err := s.daemon.SkipSelection(s.ctx, req.ID, req.Reason); err != nil {
		return err
	}
	resp.Skipped = true
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	summary, stats, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = summary.Total
	resp.Enqueued = summary.Enqueued
	resp.Running = summary.Running
	resp.Failed = summary.Failed
	resp.Imported = summary.Imported
	resp.ByStatus = make(map[string]int, len(stats))
	for k, v := range stats {
		resp.ByStatus[string(k)] = v
	}
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TablesPresent = health.TablesPresent
	resp.MissingTables = health.MissingTables
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalSessions = health.TotalSessions
	resp.TotalItems = health.TotalSelections
	resp.Error = health.Error
	return nil
}

func (s *service) ThumbList(req ThumbListRequest, resp *ThumbListResponse) error {
	retries, err := s.daemon.ThumbRetries(s.ctx, req.DisabledOnly)
	if err != nil {
		return err
	}
	resp.Retries = make([]ThumbRetry, 0, len(retries))
	for _, retry := range retries {
		if retry == nil {
			continue
		}
		resp.Retries = append(resp.Retries, ThumbRetry{
			MediaID:      retry.MediaID,
			Attempts:     retry.Attempts,
			Blockers:     retry.BlockersJSON,
			PendingJobID: retry.PendingJobID,
			Disabled:     retry.Disabled,
			UpdatedAt:    retry.UpdatedAt,
		})
	}
	return nil
}

func (s *service) ThumbRetry(req ThumbRetryRequest, resp *ThumbRetryResponse) error {
	if req.MediaID <= 0 {
		return fmt.Errorf("invalid media id %d", req.MediaID)
	}
	outcome, err := s.daemon.RetryThumb(s.ctx, req.MediaID)
	if err != nil {
		return err
	}
	resp.Outcome = string(outcome)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.daemon.TestNotification(s.ctx); err != nil {
		return err
	}
	resp.Sent = true
	return nil
}
