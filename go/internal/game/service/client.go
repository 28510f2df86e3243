package service

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client is a typed connect client for the quiz procedures.
type Client struct {
	createGame      *connect.Client[CreateGameRequest, CreateGameResponse]
	joinGame        *connect.Client[JoinGameRequest, JoinGameResponse]
	startGame       *connect.Client[StartGameRequest, StartGameResponse]
	advanceQuestion *connect.Client[AdvanceQuestionRequest, AdvanceQuestionResponse]
	submitAnswer    *connect.Client[SubmitAnswerRequest, SubmitAnswerResponse]
	getLeaderboard  *connect.Client[GetLeaderboardRequest, GetLeaderboardResponse]
	getGameState    *connect.Client[GetGameStateRequest, GetGameStateResponse]
}

// NewClient constructs a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &Client{
		createGame:      connect.NewClient[CreateGameRequest, CreateGameResponse](httpClient, baseURL+CreateGameProcedure, opts...),
		joinGame:        connect.NewClient[JoinGameRequest, JoinGameResponse](httpClient, baseURL+JoinGameProcedure, opts...),
		startGame:       connect.NewClient[StartGameRequest, StartGameResponse](httpClient, baseURL+StartGameProcedure, opts...),
		advanceQuestion: connect.NewClient[AdvanceQuestionRequest, AdvanceQuestionResponse](httpClient, baseURL+AdvanceQuestionProcedure, opts...),
		submitAnswer:    connect.NewClient[SubmitAnswerRequest, SubmitAnswerResponse](httpClient, baseURL+SubmitAnswerProcedure, opts...),
		getLeaderboard:  connect.NewClient[GetLeaderboardRequest, GetLeaderboardResponse](httpClient, baseURL+GetLeaderboardProcedure, opts...),
		getGameState:    connect.NewClient[GetGameStateRequest, GetGameStateResponse](httpClient, baseURL+GetGameStateProcedure, opts...),
	}
}

func authorized[T any](msg *T, token string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	return req
}

func (c *Client) CreateGame(ctx context.Context, req *CreateGameRequest) (*CreateGameResponse, error) {
	res, err := c.createGame.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) JoinGame(ctx context.Context, req *JoinGameRequest) (*JoinGameResponse, error) {
	res, err := c.joinGame.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) StartGame(ctx context.Context, token string, req *StartGameRequest) (*StartGameResponse, error) {
	res, err := c.startGame.CallUnary(ctx, authorized(req, token))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) AdvanceQuestion(ctx context.Context, token string, req *AdvanceQuestionRequest) (*AdvanceQuestionResponse, error) {
	res, err := c.advanceQuestion.CallUnary(ctx, authorized(req, token))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, token string, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	res, err := c.submitAnswer.CallUnary(ctx, authorized(req, token))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) GetLeaderboard(ctx context.Context, req *GetLeaderboardRequest) (*GetLeaderboardResponse, error) {
	res, err := c.getLeaderboard.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) GetGameState(ctx context.Context, req *GetGameStateRequest) (*GetGameStateResponse, error) {
	res, err := c.getGameState.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
