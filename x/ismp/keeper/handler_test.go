package keeper_test

import (
	"errors"
	"time"

	"cosmossdk.io/math"
	"github.com/celestiaorg/ismp/x/ismp/testsuite"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/ethereum/go-ethereum/common"
)

var testFee = types.FeeMetadata{Payer: []byte("payer"), Fee: math.NewInt(10)}

func (suite *KeeperTestSuite) TestCreateConsensusState() {
	suite.createClient(time.Hour)

	clientID, err := suite.keeper.ConsensusClientID(suite.ctx, testsuite.ConsensusStateID)
	suite.Require().NoError(err)
	suite.Require().Equal(testsuite.MockConsensusClientID, clientID)

	unbonding, err := suite.keeper.UnbondingPeriod(suite.ctx, testsuite.ConsensusStateID)
	suite.Require().NoError(err)
	suite.Require().Equal(testsuite.UnbondingPeriod, unbonding)

	challenge, err := suite.keeper.ChallengePeriod(suite.ctx, testsuite.Counterparty)
	suite.Require().NoError(err)
	suite.Require().Equal(time.Hour, challenge)

	height := types.StateMachineHeight{ID: testsuite.Counterparty, Height: 1}
	updateTime, err := suite.keeper.StateMachineUpdateTime(suite.ctx, height)
	suite.Require().NoError(err)
	suite.Require().Equal(genesisTime, updateTime)

	latest, err := suite.keeper.LatestCommitmentHeight(suite.ctx, testsuite.Counterparty)
	suite.Require().NoError(err)
	suite.Require().Equal(uint64(1), latest)

	csID, ok, err := suite.keeper.StateMachineConsensusStateID(suite.ctx, testsuite.Counterparty)
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Require().Equal(testsuite.ConsensusStateID, csID)

	attrs, ok := suite.findEvent(types.EventTypeConsensusClientCreated)
	suite.Require().True(ok)
	suite.Require().Equal(testsuite.ConsensusStateID.String(), attrs[types.AttributeKeyConsensusStateID])

	testCases := []struct {
		name     string
		malleate func(msg *types.CreateConsensusStateMessage)
		expErr   error
	}{
		{
			name:     "consensus state exists",
			malleate: func(msg *types.CreateConsensusStateMessage) {},
			expErr:   types.ErrConsensusStateExists,
		},
		{
			name: "unknown consensus client",
			malleate: func(msg *types.CreateConsensusStateMessage) {
				msg.ConsensusStateID = types.NewConsensusStateID("NEW1")
				msg.ConsensusClientID = types.ConsensusClientID{'N', 'O', 'P', 'E'}
			},
			expErr: types.ErrConsensusClientNotFound,
		},
		{
			name: "zero unbonding period",
			malleate: func(msg *types.CreateConsensusStateMessage) {
				msg.ConsensusStateID = types.NewConsensusStateID("NEW2")
				msg.UnbondingPeriod = 0
			},
			expErr: types.ErrInvalidMessage,
		},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			msg := &types.CreateConsensusStateMessage{
				ConsensusState:    []byte("state"),
				ConsensusClientID: testsuite.MockConsensusClientID,
				ConsensusStateID:  testsuite.ConsensusStateID,
				UnbondingPeriod:   60,
			}
			tc.malleate(msg)

			err := suite.keeper.HandleMessage(suite.ctx, msg)
			suite.Require().ErrorIs(err, tc.expErr)
		})
	}
}

func (suite *KeeperTestSuite) TestConsensusUpdate() {
	suite.createClient(0)

	update := func(id types.StateMachineID, height, timestamp uint64) error {
		return suite.keeper.HandleMessage(suite.ctx, &types.ConsensusMessage{
			ConsensusStateID: testsuite.ConsensusStateID,
			ConsensusProof: testsuite.EncodeMockConsensusUpdate(testsuite.MockConsensusUpdate{
				ID:         id,
				Height:     height,
				Commitment: types.StateCommitment{Timestamp: timestamp, StateRoot: common.HexToHash("0xaa")},
			}),
			Signer: []byte("relayer"),
		})
	}

	suite.advance(time.Minute)
	suite.Require().NoError(update(testsuite.Counterparty, 5, 500))

	commitment, err := suite.keeper.StateMachineCommitment(suite.ctx, types.StateMachineHeight{ID: testsuite.Counterparty, Height: 5})
	suite.Require().NoError(err)
	suite.Require().Equal(uint64(500), commitment.Timestamp)

	updateTime, err := suite.keeper.ConsensusUpdateTime(suite.ctx, testsuite.ConsensusStateID)
	suite.Require().NoError(err)
	suite.Require().Equal(genesisTime.Add(time.Minute), updateTime)

	attrs, ok := suite.findEvent(types.EventTypeStateMachineUpdated)
	suite.Require().True(ok)
	suite.Require().Equal(testsuite.Counterparty.String(), attrs[types.AttributeKeyStateMachineID])
	suite.Require().Equal("5", attrs[types.AttributeKeyLatestHeight])

	// existing commitments are never overwritten
	suite.Require().NoError(update(testsuite.Counterparty, 5, 999))
	commitment, err = suite.keeper.StateMachineCommitment(suite.ctx, types.StateMachineHeight{ID: testsuite.Counterparty, Height: 5})
	suite.Require().NoError(err)
	suite.Require().Equal(uint64(500), commitment.Timestamp)

	// an older height does not move the latest height back
	suite.Require().NoError(update(testsuite.Counterparty, 3, 300))
	latest, err := suite.keeper.LatestCommitmentHeight(suite.ctx, testsuite.Counterparty)
	suite.Require().NoError(err)
	suite.Require().Equal(uint64(5), latest)

	// a consensus client cannot finalize state machines owned by another one
	err = suite.keeper.HandleMessage(suite.ctx, &types.CreateConsensusStateMessage{
		ConsensusState:    []byte("state"),
		ConsensusClientID: testsuite.MockConsensusClientID,
		ConsensusStateID:  testsuite.DirectConsensusStateID,
		UnbondingPeriod:   60,
		ChallengePeriods:  []types.StateMachineChallengePeriod{{ID: testsuite.Proxied}},
	})
	suite.Require().NoError(err)
	suite.Require().NoError(update(testsuite.Proxied, 7, 700))
	_, err = suite.keeper.StateMachineCommitment(suite.ctx, types.StateMachineHeight{ID: testsuite.Proxied, Height: 7})
	suite.Require().ErrorIs(err, types.ErrStateCommitmentNotFound)

	err = suite.keeper.HandleMessage(suite.ctx, &types.ConsensusMessage{
		ConsensusStateID: testsuite.ConsensusStateID,
		ConsensusProof:   []byte("garbage"),
	})
	suite.Require().ErrorIs(err, types.ErrInvalidConsensusProof)

	err = suite.keeper.HandleMessage(suite.ctx, &types.ConsensusMessage{
		ConsensusStateID: types.NewConsensusStateID("NONE"),
		ConsensusProof:   []byte("garbage"),
	})
	suite.Require().ErrorIs(err, types.ErrConsensusStateNotFound)
}

func (suite *KeeperTestSuite) TestHandleRequests() {
	testCases := []struct {
		name     string
		malleate func(msg *types.RequestMessage)
		expErr   error
	}{
		{
			name:     "success",
			malleate: func(msg *types.RequestMessage) {},
		},
		{
			name: "wrong destination",
			malleate: func(msg *types.RequestMessage) {
				msg.Requests[0].Dest = testsuite.Unknown
			},
			expErr: types.ErrInvalidMessageDestination,
		},
		{
			name: "timed out",
			malleate: func(msg *types.RequestMessage) {
				msg.Requests[0].TimeoutTimestamp = uint64(genesisTime.Unix())
			},
			expErr: types.ErrRequestTimedOut,
		},
		{
			name: "duplicate within message",
			malleate: func(msg *types.RequestMessage) {
				msg.Requests = append(msg.Requests, msg.Requests[0])
			},
			expErr: types.ErrDuplicateRequest,
		},
		{
			name: "invalid proof",
			malleate: func(msg *types.RequestMessage) {
				msg.Proof.Proof = []byte("garbage")
			},
			expErr: types.ErrInvalidProof,
		},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.SetupTest()
			suite.createClient(0)

			msg := &types.RequestMessage{
				Requests: []types.PostRequest{incomingRequest(1), incomingRequest(2)},
				Proof:    mockProof(1),
				Signer:   []byte("relayer"),
			}
			tc.malleate(msg)

			err := suite.keeper.HandleMessage(suite.ctx, msg)
			if tc.expErr != nil {
				suite.Require().ErrorIs(err, tc.expErr)
				suite.Require().Empty(suite.module.Accepted)
				return
			}

			suite.Require().NoError(err)
			suite.Require().Equal(msg.Requests, suite.module.Accepted)

			for _, req := range msg.Requests {
				receipt, ok, err := suite.keeper.RequestReceipt(suite.ctx, req.Commitment())
				suite.Require().NoError(err)
				suite.Require().True(ok)
				suite.Require().Equal(types.RequestReceipt{Commitment: req.Commitment(), Relayer: msg.Signer}, receipt)
			}

			attrs, ok := suite.findEvent(types.EventTypePostRequestHandled)
			suite.Require().True(ok)
			suite.Require().Equal(msg.Requests[0].Commitment().Hex(), attrs[types.AttributeKeyCommitment])

			err = suite.keeper.HandleMessage(suite.ctx, msg)
			suite.Require().ErrorIs(err, types.ErrDuplicateRequest)
		})
	}
}

func (suite *KeeperTestSuite) TestModuleFailureKeepsReceipt() {
	suite.createClient(0)
	suite.module.Err = errors.New("rejected")

	req := incomingRequest(1)
	err := suite.keeper.HandleMessage(suite.ctx, &types.RequestMessage{
		Requests: []types.PostRequest{req},
		Proof:    mockProof(1),
		Signer:   []byte("relayer"),
	})
	suite.Require().NoError(err)
	suite.Require().Empty(suite.module.Accepted)

	_, ok, err := suite.keeper.RequestReceipt(suite.ctx, req.Commitment())
	suite.Require().NoError(err)
	suite.Require().True(ok)
}

func (suite *KeeperTestSuite) TestHandlePostResponses() {
	suite.createClient(0)

	req := &types.PostRequest{Dest: testsuite.Counterparty, From: testsuite.ModuleID, To: testsuite.ModuleID, Body: []byte("ping")}
	reqHash, err := suite.keeper.DispatchRequest(suite.ctx, req, testFee)
	suite.Require().NoError(err)
	suite.Require().Equal(hostID, req.Source)

	attrs, ok := suite.findEvent(types.EventTypeRequest)
	suite.Require().True(ok)
	suite.Require().Equal(reqHash.Hex(), attrs[types.AttributeKeyCommitment])

	meta, err := suite.keeper.RequestCommitment(suite.ctx, reqHash)
	suite.Require().NoError(err)
	suite.Require().Equal(testFee.Payer, meta.Payer)
	suite.Require().True(testFee.Fee.Equal(meta.Fee))

	resp := types.PostResponse{Post: *req, Response: []byte("pong")}

	expired := resp
	expired.TimeoutTimestamp = uint64(genesisTime.Unix())
	err = suite.keeper.HandleMessage(suite.ctx, &types.ResponseMessage{PostResponses: []types.PostResponse{expired}, Proof: mockProof(1)})
	suite.Require().ErrorIs(err, types.ErrResponseTimedOut)

	err = suite.keeper.HandleMessage(suite.ctx, &types.ResponseMessage{PostResponses: []types.PostResponse{resp}, Proof: mockProof(1), Signer: []byte("relayer")})
	suite.Require().NoError(err)
	suite.Require().Len(suite.module.Responses, 1)
	suite.Require().Equal(&resp, suite.module.Responses[0])

	receipt, ok, err := suite.keeper.ResponseReceipt(suite.ctx, reqHash)
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Require().Equal(resp.Commitment(), receipt.Response)

	_, err = suite.keeper.RequestCommitment(suite.ctx, reqHash)
	suite.Require().ErrorIs(err, types.ErrRequestCommitmentNotFound)

	unsolicited := types.PostResponse{Post: incomingRequest(9), Response: []byte("pong")}
	unsolicited.Post.Source, unsolicited.Post.Dest = hostID, testsuite.Counterparty
	err = suite.keeper.HandleMessage(suite.ctx, &types.ResponseMessage{PostResponses: []types.PostResponse{unsolicited}, Proof: mockProof(1)})
	suite.Require().ErrorIs(err, types.ErrRequestCommitmentNotFound)
}

func (suite *KeeperTestSuite) TestHandleGetResponses() {
	suite.createClient(0)

	get := &types.GetRequest{
		Dest:             testsuite.Counterparty,
		From:             testsuite.ModuleID,
		Keys:             [][]byte{[]byte("a"), []byte("b")},
		Height:           1,
		TimeoutTimestamp: uint64(genesisTime.Add(time.Hour).Unix()),
	}
	hash, err := suite.keeper.DispatchGet(suite.ctx, get, testFee)
	suite.Require().NoError(err)

	_, ok := suite.findEvent(types.EventTypeGetRequest)
	suite.Require().True(ok)

	wrongHeight := &types.ResponseMessage{GetRequests: []types.GetRequest{*get}, Proof: mockProof(2)}
	err = suite.keeper.HandleMessage(suite.ctx, wrongHeight)
	suite.Require().ErrorIs(err, types.ErrStateCommitmentNotFound)

	msg := &types.ResponseMessage{GetRequests: []types.GetRequest{*get}, Proof: mockProof(1), Signer: []byte("relayer")}
	suite.Require().NoError(suite.keeper.HandleMessage(suite.ctx, msg))

	suite.Require().Len(suite.module.Responses, 1)
	resp, ok := suite.module.Responses[0].(*types.GetResponse)
	suite.Require().True(ok)
	suite.Require().Equal(*get, resp.Get)
	suite.Require().Equal([]types.StorageValue{{Key: []byte("a")}, {Key: []byte("b")}}, resp.Values)

	receipt, ok, err := suite.keeper.ResponseReceipt(suite.ctx, hash)
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Require().Equal(resp.Commitment(), receipt.Response)

	err = suite.keeper.HandleMessage(suite.ctx, msg)
	suite.Require().ErrorIs(err, types.ErrDuplicateResponse)
}

func (suite *KeeperTestSuite) TestGetRequestTimeout() {
	get := &types.GetRequest{
		Dest:             testsuite.Counterparty,
		From:             testsuite.ModuleID,
		Keys:             [][]byte{[]byte("a")},
		Height:           1,
		TimeoutTimestamp: uint64(genesisTime.Add(time.Minute).Unix()),
	}
	hash, err := suite.keeper.DispatchGet(suite.ctx, get, testFee)
	suite.Require().NoError(err)

	msg := &types.TimeoutMessage{GetRequests: []types.GetRequest{*get}, Signer: []byte("relayer")}
	err = suite.keeper.HandleMessage(suite.ctx, msg)
	suite.Require().ErrorIs(err, types.ErrTimeoutNotElapsed)

	suite.advance(time.Minute)
	suite.Require().NoError(suite.keeper.HandleMessage(suite.ctx, msg))
	suite.Require().Len(suite.module.Timeouts, 1)
	suite.Require().Equal(hash, suite.module.Timeouts[0].Request.Commitment())

	_, err = suite.keeper.RequestCommitment(suite.ctx, hash)
	suite.Require().ErrorIs(err, types.ErrRequestCommitmentNotFound)

	attrs, ok := suite.findEvent(types.EventTypeRequestTimeoutHandled)
	suite.Require().True(ok)
	suite.Require().Equal(hash.Hex(), attrs[types.AttributeKeyCommitment])
}

func (suite *KeeperTestSuite) TestPostResponseTimeout() {
	suite.createClient(0)

	req := incomingRequest(1)
	err := suite.keeper.HandleMessage(suite.ctx, &types.RequestMessage{Requests: []types.PostRequest{req}, Proof: mockProof(1)})
	suite.Require().NoError(err)

	resp := &types.PostResponse{Post: req, Response: []byte("pong"), TimeoutTimestamp: uint64(genesisTime.Unix()) + 1}
	hash, err := suite.keeper.DispatchResponse(suite.ctx, resp, testFee)
	suite.Require().NoError(err)

	_, err = suite.keeper.DispatchResponse(suite.ctx, resp, testFee)
	suite.Require().ErrorIs(err, types.ErrDuplicateResponse)

	msg := &types.TimeoutMessage{PostResponses: []types.PostResponse{*resp}, Proof: mockProof(1), Signer: []byte("relayer")}
	suite.Require().NoError(suite.keeper.HandleMessage(suite.ctx, msg))
	suite.Require().Len(suite.module.Timeouts, 1)
	suite.Require().Equal(hash, suite.module.Timeouts[0].Response.Commitment())

	_, err = suite.keeper.ResponseCommitment(suite.ctx, hash)
	suite.Require().ErrorIs(err, types.ErrResponseCommitmentNotFound)

	err = suite.keeper.HandleMessage(suite.ctx, msg)
	suite.Require().ErrorIs(err, types.ErrResponseCommitmentNotFound)

	// a timed out response frees the request to be responded to again
	resp.TimeoutTimestamp = 0
	_, err = suite.keeper.DispatchResponse(suite.ctx, resp, testFee)
	suite.Require().NoError(err)
}

func (suite *KeeperTestSuite) TestVetoStateCommitment() {
	suite.createClient(time.Hour)
	height := types.StateMachineHeight{ID: testsuite.Counterparty, Height: 1}

	suite.Require().NoError(suite.keeper.VetoStateCommitment(suite.ctx, height))

	_, err := suite.keeper.StateMachineCommitment(suite.ctx, height)
	suite.Require().ErrorIs(err, types.ErrStateCommitmentNotFound)

	attrs, ok := suite.findEvent(types.EventTypeStateMachineVetoed)
	suite.Require().True(ok)
	suite.Require().Equal("1", attrs[types.AttributeKeyHeight])

	err = suite.keeper.VetoStateCommitment(suite.ctx, height)
	suite.Require().ErrorIs(err, types.ErrStateCommitmentNotFound)
}

func (suite *KeeperTestSuite) TestVetoAfterChallengePeriod() {
	suite.createClient(time.Hour)
	suite.advance(time.Hour)

	err := suite.keeper.VetoStateCommitment(suite.ctx, types.StateMachineHeight{ID: testsuite.Counterparty, Height: 1})
	suite.Require().ErrorIs(err, types.ErrInvalidMessage)
}

// createDestClient creates a second consensus state tracking Proxied, finalized past genesis.
func (suite *KeeperTestSuite) createDestClient() {
	err := suite.keeper.HandleMessage(suite.ctx, &types.CreateConsensusStateMessage{
		ConsensusState:    []byte("dest"),
		ConsensusClientID: testsuite.MockConsensusClientID,
		ConsensusStateID:  types.NewConsensusStateID("DEST"),
		UnbondingPeriod:   uint64(testsuite.UnbondingPeriod / time.Second),
		StateMachineCommitments: []types.StateMachineCommitment{{
			ID: testsuite.Proxied,
			Commitment: types.StateCommitmentHeight{
				Commitment: types.StateCommitment{Timestamp: uint64(genesisTime.Unix()) + 1000},
				Height:     1,
			},
		}},
	})
	suite.Require().NoError(err)
}

func routedRequest() types.PostRequest {
	req := incomingRequest(1)
	req.Dest = testsuite.Proxied
	req.TimeoutTimestamp = uint64(genesisTime.Unix()) + 100
	return req
}

func (suite *KeeperTestSuite) TestHubRoutesRequest() {
	suite.createClient(0)
	suite.Require().NoError(suite.keeper.SetParams(suite.ctx, types.Params{Hub: true}))

	req := routedRequest()
	msg := &types.RequestMessage{Requests: []types.PostRequest{req}, Proof: mockProof(1), Signer: []byte("relayer")}
	suite.Require().NoError(suite.keeper.HandleMessage(suite.ctx, msg))
	suite.Require().Empty(suite.module.Accepted)

	receipt, ok, err := suite.keeper.RequestReceipt(suite.ctx, req.Commitment())
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Require().Equal([]byte("relayer"), receipt.Relayer)

	_, err = suite.keeper.RequestCommitment(suite.ctx, req.Commitment())
	suite.Require().NoError(err)

	attrs, ok := suite.findEvent(types.EventTypeRequest)
	suite.Require().True(ok)
	suite.Require().Equal(testsuite.Proxied.String(), attrs[types.AttributeKeyDest])
	suite.Require().Equal(req.Commitment().Hex(), attrs[types.AttributeKeyCommitment])
	_, ok = suite.findEvent(types.EventTypePostRequestHandled)
	suite.Require().True(ok)

	err = suite.keeper.HandleMessage(suite.ctx, msg)
	suite.Require().ErrorIs(err, types.ErrDuplicateRequest)
}

func (suite *KeeperTestSuite) TestRoutingRequiresHub() {
	suite.createClient(0)

	req := routedRequest()
	err := suite.keeper.HandleMessage(suite.ctx, &types.RequestMessage{Requests: []types.PostRequest{req}, Proof: mockProof(1)})
	suite.Require().ErrorIs(err, types.ErrInvalidMessageDestination)

	_, ok, err := suite.keeper.RequestReceipt(suite.ctx, req.Commitment())
	suite.Require().NoError(err)
	suite.Require().False(ok)
}

func (suite *KeeperTestSuite) TestHubRoutedRequestTimeout() {
	suite.createClient(0)
	suite.createDestClient()
	suite.Require().NoError(suite.keeper.SetParams(suite.ctx, types.Params{Hub: true}))

	req := routedRequest()
	suite.Require().NoError(suite.keeper.HandleMessage(suite.ctx, &types.RequestMessage{
		Requests: []types.PostRequest{req},
		Proof:    mockProof(1),
		Signer:   []byte("relayer"),
	}))

	timeout := &types.TimeoutMessage{
		PostRequests: []types.PostRequest{req},
		Proof:        types.Proof{Height: types.StateMachineHeight{ID: testsuite.Proxied, Height: 1}, Proof: testsuite.MockProof},
		Signer:       []byte("relayer"),
	}
	suite.Require().NoError(suite.keeper.HandleMessage(suite.ctx, timeout))
	suite.Require().Empty(suite.module.Timeouts)

	// Without the receipt the source can prove the request never left the hub.
	_, ok, err := suite.keeper.RequestReceipt(suite.ctx, req.Commitment())
	suite.Require().NoError(err)
	suite.Require().False(ok)

	_, err = suite.keeper.RequestCommitment(suite.ctx, req.Commitment())
	suite.Require().ErrorIs(err, types.ErrRequestCommitmentNotFound)

	err = suite.keeper.HandleMessage(suite.ctx, timeout)
	suite.Require().ErrorIs(err, types.ErrRequestCommitmentNotFound)
}

func (suite *KeeperTestSuite) TestRoutedTimeoutRequiresHub() {
	suite.createClient(0)
	suite.createDestClient()

	req := routedRequest()
	err := suite.keeper.HandleMessage(suite.ctx, &types.TimeoutMessage{
		PostRequests: []types.PostRequest{req},
		Proof:        types.Proof{Height: types.StateMachineHeight{ID: testsuite.Proxied, Height: 1}, Proof: testsuite.MockProof},
	})
	suite.Require().ErrorIs(err, types.ErrInvalidMessageDestination)
}
