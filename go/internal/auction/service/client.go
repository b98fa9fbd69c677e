package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/tourney-auction/go/internal/auction/queue"
)

// Client calls an AuctionService over connect with the JSON codec.
type Client struct {
	enqueue        *connect.Client[EnqueueRequest, EnqueueResponse]
	enqueueStream  *connect.Client[EnqueueRequest, queue.EnqueueProgress]
	remove         *connect.Client[RemoveRequest, QueueResponse]
	reorder        *connect.Client[ReorderRequest, QueueResponse]
	advanceQueue   *connect.Client[AdvanceQueueRequest, RoundResponse]
	recordBid      *connect.Client[RecordBidRequest, RecordBidResponse]
	commit         *connect.Client[CommitRequest, RoundResponse]
	cancel         *connect.Client[CancelRequest, RoundResponse]
	undo           *connect.Client[UndoRequest, UndoResponse]
	pauseTimer     *connect.Client[TimerRequest, TimerResponse]
	resumeTimer    *connect.Client[TimerRequest, TimerResponse]
	getQueue       *connect.Client[GetQueueRequest, QueueResponse]
	getRound       *connect.Client[GetRoundRequest, GetRoundResponse]
	getBudgets     *connect.Client[GetBudgetsRequest, GetBudgetsResponse]
	getPreferences *connect.Client[GetPreferencesRequest, GetPreferencesResponse]
	getSnapshot    *connect.Client[GetSnapshotRequest, GetSnapshotResponse]
}

// NewClient builds a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		enqueue:        connect.NewClient[EnqueueRequest, EnqueueResponse](httpClient, baseURL+EnqueueProcedure, opts...),
		enqueueStream:  connect.NewClient[EnqueueRequest, queue.EnqueueProgress](httpClient, baseURL+EnqueueStreamProcedure, opts...),
		remove:         connect.NewClient[RemoveRequest, QueueResponse](httpClient, baseURL+RemoveProcedure, opts...),
		reorder:        connect.NewClient[ReorderRequest, QueueResponse](httpClient, baseURL+ReorderProcedure, opts...),
		advanceQueue:   connect.NewClient[AdvanceQueueRequest, RoundResponse](httpClient, baseURL+AdvanceQueueProcedure, opts...),
		recordBid:      connect.NewClient[RecordBidRequest, RecordBidResponse](httpClient, baseURL+RecordBidProcedure, opts...),
		commit:         connect.NewClient[CommitRequest, RoundResponse](httpClient, baseURL+CommitProcedure, opts...),
		cancel:         connect.NewClient[CancelRequest, RoundResponse](httpClient, baseURL+CancelProcedure, opts...),
		undo:           connect.NewClient[UndoRequest, UndoResponse](httpClient, baseURL+UndoProcedure, opts...),
		pauseTimer:     connect.NewClient[TimerRequest, TimerResponse](httpClient, baseURL+PauseTimerProcedure, opts...),
		resumeTimer:    connect.NewClient[TimerRequest, TimerResponse](httpClient, baseURL+ResumeTimerProcedure, opts...),
		getQueue:       connect.NewClient[GetQueueRequest, QueueResponse](httpClient, baseURL+GetQueueProcedure, opts...),
		getRound:       connect.NewClient[GetRoundRequest, GetRoundResponse](httpClient, baseURL+GetRoundProcedure, opts...),
		getBudgets:     connect.NewClient[GetBudgetsRequest, GetBudgetsResponse](httpClient, baseURL+GetBudgetsProcedure, opts...),
		getPreferences: connect.NewClient[GetPreferencesRequest, GetPreferencesResponse](httpClient, baseURL+GetPreferencesProcedure, opts...),
		getSnapshot:    connect.NewClient[GetSnapshotRequest, GetSnapshotResponse](httpClient, baseURL+GetSnapshotProcedure, opts...),
	}
}

func (c *Client) Enqueue(ctx context.Context, req *EnqueueRequest) (*EnqueueResponse, error) {
	return unary(ctx, c.enqueue, req)
}

// EnqueueStream enqueues and calls onProgress for every progress message.
func (c *Client) EnqueueStream(ctx context.Context, req *EnqueueRequest, onProgress func(queue.EnqueueProgress)) error {
	stream, err := c.enqueueStream.CallServerStream(ctx, connect.NewRequest(req))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if onProgress != nil {
			onProgress(*stream.Msg())
		}
	}
	return stream.Err()
}

func (c *Client) Remove(ctx context.Context, req *RemoveRequest) (*QueueResponse, error) {
	return unary(ctx, c.remove, req)
}

func (c *Client) Reorder(ctx context.Context, req *ReorderRequest) (*QueueResponse, error) {
	return unary(ctx, c.reorder, req)
}

func (c *Client) AdvanceQueue(ctx context.Context, req *AdvanceQueueRequest) (*RoundResponse, error) {
	return unary(ctx, c.advanceQueue, req)
}

func (c *Client) RecordBid(ctx context.Context, req *RecordBidRequest) (*RecordBidResponse, error) {
	return unary(ctx, c.recordBid, req)
}

func (c *Client) Commit(ctx context.Context, req *CommitRequest) (*RoundResponse, error) {
	return unary(ctx, c.commit, req)
}

func (c *Client) Cancel(ctx context.Context, req *CancelRequest) (*RoundResponse, error) {
	return unary(ctx, c.cancel, req)
}

func (c *Client) Undo(ctx context.Context, req *UndoRequest) (*UndoResponse, error) {
	return unary(ctx, c.undo, req)
}

func (c *Client) PauseTimer(ctx context.Context, req *TimerRequest) (*TimerResponse, error) {
	return unary(ctx, c.pauseTimer, req)
}

func (c *Client) ResumeTimer(ctx context.Context, req *TimerRequest) (*TimerResponse, error) {
	return unary(ctx, c.resumeTimer, req)
}

func (c *Client) GetQueue(ctx context.Context, req *GetQueueRequest) (*QueueResponse, error) {
	return unary(ctx, c.getQueue, req)
}

func (c *Client) GetRound(ctx context.Context, req *GetRoundRequest) (*GetRoundResponse, error) {
	return unary(ctx, c.getRound, req)
}

func (c *Client) GetBudgets(ctx context.Context, req *GetBudgetsRequest) (*GetBudgetsResponse, error) {
	return unary(ctx, c.getBudgets, req)
}

func (c *Client) GetPreferences(ctx context.Context, req *GetPreferencesRequest) (*GetPreferencesResponse, error) {
	return unary(ctx, c.getPreferences, req)
}

func (c *Client) GetSnapshot(ctx context.Context, req *GetSnapshotRequest) (*GetSnapshotResponse, error) {
	return unary(ctx, c.getSnapshot, req)
}

func unary[Req, Res any](ctx context.Context, client *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// ErrorKind returns the engine error kind attached to a failed call, or "".
func ErrorKind(err error) string {
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return ""
	}
	return ce.Meta().Get(ErrorKindHeader)
}
