// Package service exposes the auction commands and queries over connect, using a JSON codec
// on plain Go request and response structs.
package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mcdev12/tourney-auction/go/internal/auction/auctionerr"
	"github.com/mcdev12/tourney-auction/go/internal/auction/coordinator"
	"github.com/mcdev12/tourney-auction/go/internal/auction/ledger"
	"github.com/mcdev12/tourney-auction/go/internal/auction/preference"
	"github.com/mcdev12/tourney-auction/go/internal/auction/queue"
	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/rs/zerolog/log"
)

const ServiceName = "auction.v1.AuctionService"

// Procedure paths.
const (
	EnqueueProcedure        = "/" + ServiceName + "/Enqueue"
	EnqueueStreamProcedure  = "/" + ServiceName + "/EnqueueStream"
	RemoveProcedure         = "/" + ServiceName + "/Remove"
	ReorderProcedure        = "/" + ServiceName + "/Reorder"
	AdvanceQueueProcedure   = "/" + ServiceName + "/AdvanceQueue"
	RecordBidProcedure      = "/" + ServiceName + "/RecordBid"
	CommitProcedure         = "/" + ServiceName + "/Commit"
	CancelProcedure         = "/" + ServiceName + "/Cancel"
	UndoProcedure           = "/" + ServiceName + "/Undo"
	PauseTimerProcedure     = "/" + ServiceName + "/PauseTimer"
	ResumeTimerProcedure    = "/" + ServiceName + "/ResumeTimer"
	GetQueueProcedure       = "/" + ServiceName + "/GetQueue"
	GetRoundProcedure       = "/" + ServiceName + "/GetRound"
	GetBudgetsProcedure     = "/" + ServiceName + "/GetBudgets"
	GetPreferencesProcedure = "/" + ServiceName + "/GetPreferences"
	GetSnapshotProcedure    = "/" + ServiceName + "/GetSnapshot"
)

// ErrorKindHeader carries the engine error kind on failed calls.
const ErrorKindHeader = "Auction-Error-Kind"

// Counts of an interrupted enqueue batch, set on the error's metadata.
const (
	EnqueueDoneHeader     = "Auction-Enqueue-Done"
	EnqueueAcceptedHeader = "Auction-Enqueue-Accepted"
)

// Auction defines what the service layer needs from the coordinator
type Auction interface {
	Enqueue(ctx context.Context, key models.PartitionKey, playerIDs []uuid.UUID, progress func(queue.EnqueueProgress)) (*queue.EnqueueReport, error)
	Remove(ctx context.Context, entryID uuid.UUID) ([]models.QueueEntry, error)
	Reorder(ctx context.Context, entryID uuid.UUID, newPosition int) ([]models.QueueEntry, error)
	AdvanceQueue(ctx context.Context, key models.PartitionKey) (*models.Round, error)
	RecordBid(ctx context.Context, roundID, teamID uuid.UUID, amount int64) (*models.Bid, error)
	Commit(ctx context.Context, roundID, teamID uuid.UUID, finalPoints int64) (*models.Round, error)
	Cancel(ctx context.Context, roundID uuid.UUID) (*models.Round, error)
	Undo(ctx context.Context, roundID uuid.UUID) (*coordinator.UndoResult, error)
	PauseTimer(ctx context.Context, key models.PartitionKey) (*models.TimerState, error)
	ResumeTimer(ctx context.Context, key models.PartitionKey) (*models.TimerState, error)

	Snapshot(ctx context.Context, key models.PartitionKey) (*coordinator.Snapshot, error)
	CurrentRound(ctx context.Context, key models.PartitionKey) (*models.Round, *models.TimerState, error)
	GetRound(ctx context.Context, roundID uuid.UUID) (*models.Round, error)
	LatestRoundForPlayer(ctx context.Context, playerID uuid.UUID) (*models.Round, error)
	Budgets(ctx context.Context, tournamentID uuid.UUID) ([]ledger.TeamBudget, error)
	Queue() *queue.App
}

// Preferences computes preferred-player dispositions.
type Preferences interface {
	Dispositions(ctx context.Context, teamID uuid.UUID) ([]preference.Disposition, error)
}

// Service implements the AuctionService handlers
type Service struct {
	auction  Auction
	prefs    Preferences
	validate *validator.Validate
}

func NewService(auction Auction, prefs Preferences) *Service {
	return &Service{
		auction:  auction,
		prefs:    prefs,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handler returns the path prefix and handler serving every procedure.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(loggingInterceptor()),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(EnqueueProcedure, connect.NewUnaryHandler(EnqueueProcedure, s.Enqueue, opts...))
	mux.Handle(EnqueueStreamProcedure, connect.NewServerStreamHandler(EnqueueStreamProcedure, s.EnqueueStream, opts...))
	mux.Handle(RemoveProcedure, connect.NewUnaryHandler(RemoveProcedure, s.Remove, opts...))
	mux.Handle(ReorderProcedure, connect.NewUnaryHandler(ReorderProcedure, s.Reorder, opts...))
	mux.Handle(AdvanceQueueProcedure, connect.NewUnaryHandler(AdvanceQueueProcedure, s.AdvanceQueue, opts...))
	mux.Handle(RecordBidProcedure, connect.NewUnaryHandler(RecordBidProcedure, s.RecordBid, opts...))
	mux.Handle(CommitProcedure, connect.NewUnaryHandler(CommitProcedure, s.Commit, opts...))
	mux.Handle(CancelProcedure, connect.NewUnaryHandler(CancelProcedure, s.Cancel, opts...))
	mux.Handle(UndoProcedure, connect.NewUnaryHandler(UndoProcedure, s.Undo, opts...))
	mux.Handle(PauseTimerProcedure, connect.NewUnaryHandler(PauseTimerProcedure, s.PauseTimer, opts...))
	mux.Handle(ResumeTimerProcedure, connect.NewUnaryHandler(ResumeTimerProcedure, s.ResumeTimer, opts...))
	mux.Handle(GetQueueProcedure, connect.NewUnaryHandler(GetQueueProcedure, s.GetQueue, opts...))
	mux.Handle(GetRoundProcedure, connect.NewUnaryHandler(GetRoundProcedure, s.GetRound, opts...))
	mux.Handle(GetBudgetsProcedure, connect.NewUnaryHandler(GetBudgetsProcedure, s.GetBudgets, opts...))
	mux.Handle(GetPreferencesProcedure, connect.NewUnaryHandler(GetPreferencesProcedure, s.GetPreferences, opts...))
	mux.Handle(GetSnapshotProcedure, connect.NewUnaryHandler(GetSnapshotProcedure, s.GetSnapshot, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return nil
}

// Enqueue adds players to the tail of a queue. Per-player failures are in the report.
func (s *Service) Enqueue(ctx context.Context, req *connect.Request[EnqueueRequest]) (*connect.Response[EnqueueResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	report, err := s.auction.Enqueue(ctx, req.Msg.key(), parseIDs(req.Msg.PlayerIDs), nil)
	if err != nil {
		return nil, interruptedEnqueue(err, report, len(req.Msg.PlayerIDs))
	}
	return connect.NewResponse(&EnqueueResponse{Report: *report}), nil
}

// EnqueueStream is Enqueue with one progress message per player.
func (s *Service) EnqueueStream(ctx context.Context, req *connect.Request[EnqueueRequest], stream *connect.ServerStream[queue.EnqueueProgress]) error {
	if err := s.check(req.Msg); err != nil {
		return err
	}

	var sendErr error
	report, err := s.auction.Enqueue(ctx, req.Msg.key(), parseIDs(req.Msg.PlayerIDs), func(p queue.EnqueueProgress) {
		if sendErr == nil {
			sendErr = stream.Send(&p)
		}
	})
	if err != nil {
		return interruptedEnqueue(err, report, len(req.Msg.PlayerIDs))
	}
	return sendErr
}

// interruptedEnqueue converts err and, when part of the batch already went through, records
// how much of it did. Accepted entries stay queued.
func interruptedEnqueue(err error, report *queue.EnqueueReport, total int) error {
	out := toConnectError(err)
	if report == nil {
		return out
	}
	log.Warn().
		Err(err).
		Int("done", len(report.Items)).
		Int("total", total).
		Int("accepted", report.Accepted).
		Msg("enqueue interrupted")

	var ce *connect.Error
	if errors.As(out, &ce) {
		ce.Meta().Set(EnqueueDoneHeader, strconv.Itoa(len(report.Items)))
		ce.Meta().Set(EnqueueAcceptedHeader, strconv.Itoa(report.Accepted))
	}
	return out
}

func (s *Service) Remove(ctx context.Context, req *connect.Request[RemoveRequest]) (*connect.Response[QueueResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	entries, err := s.auction.Remove(ctx, uuid.MustParse(req.Msg.EntryID))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&QueueResponse{Entries: entries}), nil
}

func (s *Service) Reorder(ctx context.Context, req *connect.Request[ReorderRequest]) (*connect.Response[QueueResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	entries, err := s.auction.Reorder(ctx, uuid.MustParse(req.Msg.EntryID), req.Msg.NewPosition)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&QueueResponse{Entries: entries}), nil
}

// AdvanceQueue starts the round for the head of the queue.
func (s *Service) AdvanceQueue(ctx context.Context, req *connect.Request[AdvanceQueueRequest]) (*connect.Response[RoundResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	r, err := s.auction.AdvanceQueue(ctx, req.Msg.key())
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RoundResponse{Round: *r}), nil
}

func (s *Service) RecordBid(ctx context.Context, req *connect.Request[RecordBidRequest]) (*connect.Response[RecordBidResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	bid, err := s.auction.RecordBid(ctx, uuid.MustParse(req.Msg.RoundID), uuid.MustParse(req.Msg.TeamID), req.Msg.Amount)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RecordBidResponse{Bid: *bid}), nil
}

func (s *Service) Commit(ctx context.Context, req *connect.Request[CommitRequest]) (*connect.Response[RoundResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	r, err := s.auction.Commit(ctx, uuid.MustParse(req.Msg.RoundID), uuid.MustParse(req.Msg.TeamID), req.Msg.FinalPoints)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RoundResponse{Round: *r}), nil
}

func (s *Service) Cancel(ctx context.Context, req *connect.Request[CancelRequest]) (*connect.Response[RoundResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	r, err := s.auction.Cancel(ctx, uuid.MustParse(req.Msg.RoundID))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RoundResponse{Round: *r}), nil
}

func (s *Service) Undo(ctx context.Context, req *connect.Request[UndoRequest]) (*connect.Response[UndoResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	res, err := s.auction.Undo(ctx, uuid.MustParse(req.Msg.RoundID))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&UndoResponse{Result: *res}), nil
}

func (s *Service) PauseTimer(ctx context.Context, req *connect.Request[TimerRequest]) (*connect.Response[TimerResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	st, err := s.auction.PauseTimer(ctx, req.Msg.key())
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: *st}), nil
}

// ResumeTimer restarts a paused timer, or clears a stall.
func (s *Service) ResumeTimer(ctx context.Context, req *connect.Request[TimerRequest]) (*connect.Response[TimerResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	st, err := s.auction.ResumeTimer(ctx, req.Msg.key())
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: *st}), nil
}

func (s *Service) GetQueue(ctx context.Context, req *connect.Request[GetQueueRequest]) (*connect.Response[QueueResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	entries, err := s.auction.Queue().List(ctx, req.Msg.key())
	if err != nil {
		return nil, toConnectError(err)
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	return connect.NewResponse(&QueueResponse{Entries: entries}), nil
}

func (s *Service) GetRound(ctx context.Context, req *connect.Request[GetRoundRequest]) (*connect.Response[GetRoundResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}

	m := req.Msg
	resp := &GetRoundResponse{}
	var err error
	switch {
	case m.RoundID != "":
		resp.Round, err = s.auction.GetRound(ctx, uuid.MustParse(m.RoundID))
	case m.PlayerID != "":
		resp.Round, err = s.auction.LatestRoundForPlayer(ctx, uuid.MustParse(m.PlayerID))
		if err == nil && resp.Round == nil {
			err = connect.NewError(connect.CodeNotFound, errors.New("player has no rounds"))
		}
	case m.TournamentID != "" && m.Category != "":
		key := models.PartitionKey{TournamentID: uuid.MustParse(m.TournamentID), Category: m.Category}
		resp.Round, resp.Timer, err = s.auction.CurrentRound(ctx, key)
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument,
			errors.New("one of round_id, player_id, or tournament_id with category is required"))
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

func (s *Service) GetBudgets(ctx context.Context, req *connect.Request[GetBudgetsRequest]) (*connect.Response[GetBudgetsResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	budgets, err := s.auction.Budgets(ctx, uuid.MustParse(req.Msg.TournamentID))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetBudgetsResponse{Budgets: budgets}), nil
}

func (s *Service) GetPreferences(ctx context.Context, req *connect.Request[GetPreferencesRequest]) (*connect.Response[GetPreferencesResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	ds, err := s.prefs.Dispositions(ctx, uuid.MustParse(req.Msg.TeamID))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetPreferencesResponse{Dispositions: ds}), nil
}

func (s *Service) GetSnapshot(ctx context.Context, req *connect.Request[GetSnapshotRequest]) (*connect.Response[GetSnapshotResponse], error) {
	if err := s.check(req.Msg); err != nil {
		return nil, err
	}
	snap, err := s.auction.Snapshot(ctx, req.Msg.key())
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetSnapshotResponse{Snapshot: *snap}), nil
}

// parseIDs converts validated id strings.
func parseIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		ids[i] = uuid.MustParse(s)
	}
	return ids
}

// toConnectError maps engine error kinds onto connect codes.
func toConnectError(err error) error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}

	kind := auctionerr.Kind(err)
	var code connect.Code
	switch kind {
	case auctionerr.ErrNotFound:
		code = connect.CodeNotFound
	case auctionerr.ErrInvalidPosition, auctionerr.ErrBidTooLow:
		code = connect.CodeInvalidArgument
	case auctionerr.ErrInsufficientBudget,
		auctionerr.ErrRosterFull,
		auctionerr.ErrInvalidStateTransition,
		auctionerr.ErrQueueEmpty,
		auctionerr.ErrRoundAlreadyActive,
		auctionerr.ErrRoundStalled:
		code = connect.CodeFailedPrecondition
	case auctionerr.ErrConcurrencyConflict:
		code = connect.CodeAborted
	default:
		switch {
		case errors.Is(err, context.Canceled):
			code = connect.CodeCanceled
		case errors.Is(err, context.DeadlineExceeded):
			code = connect.CodeDeadlineExceeded
		default:
			code = connect.CodeInternal
		}
	}

	out := connect.NewError(code, err)
	if kind != nil {
		out.Meta().Set(ErrorKindHeader, kindName(kind))
	}
	return out
}

var kindNames = map[error]string{
	auctionerr.ErrQueueEmpty:             "QueueEmpty",
	auctionerr.ErrRoundAlreadyActive:     "RoundAlreadyActive",
	auctionerr.ErrInvalidPosition:        "InvalidPosition",
	auctionerr.ErrNotFound:               "NotFound",
	auctionerr.ErrInsufficientBudget:     "InsufficientBudget",
	auctionerr.ErrRosterFull:             "RosterFull",
	auctionerr.ErrInvalidStateTransition: "InvalidStateTransition",
	auctionerr.ErrConcurrencyConflict:    "ConcurrencyConflict",
	auctionerr.ErrBidTooLow:              "BidTooLow",
	auctionerr.ErrRoundStalled:           "RoundStalled",
}

func kindName(kind error) string {
	if name, ok := kindNames[kind]; ok {
		return name
	}
	return kind.Error()
}

// loggingInterceptor logs every unary call with its outcome.
func loggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			ev := log.Debug()
			if err != nil {
				code := connect.CodeOf(err)
				if code == connect.CodeInternal || code == connect.CodeUnknown {
					ev = log.Error()
				} else {
					ev = log.Info()
				}
				ev = ev.Err(err).Str("code", code.String())
			}
			ev.Str("procedure", req.Spec().Procedure).
				Dur("duration", time.Since(start)).
				Msg("rpc")
			return res, err
		}
	}
}
