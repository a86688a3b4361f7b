package keeper_test

import (
	"time"

	"github.com/celestiaorg/ismp/x/ismp/keeper"
	"github.com/celestiaorg/ismp/x/ismp/testsuite"
	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
)

const testChainID = "ismp-test"

func (suite *KeeperTestSuite) encode(msg types.Message) []byte {
	bz, err := types.EncodeMessage(msg)
	suite.Require().NoError(err)
	return bz
}

func (suite *KeeperTestSuite) TestSubmitDatagram() {
	relayer := sdk.AccAddress(secp256k1.GenPrivKey().PubKey().Address())
	var msg *types.MsgSubmitDatagram

	testCases := []struct {
		name      string
		setupTest func()
		expError  error
	}{
		{
			name: "success",
			setupTest: func() {
				suite.createClient(0)
				msg = &types.MsgSubmitDatagram{
					Signer:   relayer.String(),
					Datagram: suite.encode(&types.RequestMessage{Requests: []types.PostRequest{incomingRequest(1)}, Proof: mockProof(1)}),
				}
			},
		},
		{
			name: "datagram names another relayer",
			setupTest: func() {
				suite.createClient(0)
				msg = &types.MsgSubmitDatagram{
					Signer: relayer.String(),
					Datagram: suite.encode(&types.RequestMessage{
						Requests: []types.PostRequest{incomingRequest(1)},
						Proof:    mockProof(1),
						Signer:   []byte("someone else"),
					}),
				}
			},
			expError: sdkerrors.ErrUnauthorized,
		},
		{
			name: "consensus state created by a relayer",
			setupTest: func() {
				msg = &types.MsgSubmitDatagram{
					Signer: relayer.String(),
					Datagram: suite.encode(&types.CreateConsensusStateMessage{
						ConsensusState:    []byte("state"),
						ConsensusClientID: testsuite.MockConsensusClientID,
						ConsensusStateID:  testsuite.ConsensusStateID,
						UnbondingPeriod:   uint64(testsuite.UnbondingPeriod / time.Second),
					}),
				}
			},
			expError: sdkerrors.ErrUnauthorized,
		},
		{
			name: "malformed datagram",
			setupTest: func() {
				msg = &types.MsgSubmitDatagram{Signer: relayer.String(), Datagram: []byte{0xc2, 0x63, 0x80}}
			},
			expError: types.ErrInvalidMessage,
		},
		{
			name: "invalid signer",
			setupTest: func() {
				msg = &types.MsgSubmitDatagram{Signer: "relayer", Datagram: []byte{0x01}}
			},
			expError: sdkerrors.ErrInvalidAddress,
		},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.SetupTest()

			tc.setupTest()

			msgServer := keeper.NewMsgServerImpl(suite.keeper)
			res, err := msgServer.SubmitDatagram(suite.ctx, msg)

			if tc.expError != nil {
				suite.Require().Nil(res)
				suite.Require().ErrorIs(err, tc.expError)
				suite.Require().Empty(suite.module.Accepted)
				return
			}
			suite.Require().NoError(err)
			suite.Require().NotNil(res)

			req := incomingRequest(1)
			receipt, ok, err := suite.keeper.RequestReceipt(suite.ctx, req.Commitment())
			suite.Require().NoError(err)
			suite.Require().True(ok)
			suite.Require().Equal([]byte(relayer), receipt.Relayer)
		})
	}
}

func (suite *KeeperTestSuite) TestSubmitDatagramByAuthority() {
	msgServer := keeper.NewMsgServerImpl(suite.keeper)
	_, err := msgServer.SubmitDatagram(suite.ctx, &types.MsgSubmitDatagram{
		Signer: authority,
		Datagram: suite.encode(&types.CreateConsensusStateMessage{
			ConsensusState:    []byte("state"),
			ConsensusClientID: testsuite.MockConsensusClientID,
			ConsensusStateID:  testsuite.ConsensusStateID,
			UnbondingPeriod:   uint64(testsuite.UnbondingPeriod / time.Second),
		}),
	})
	suite.Require().NoError(err)

	_, err = suite.keeper.ConsensusState(suite.ctx, testsuite.ConsensusStateID)
	suite.Require().NoError(err)
}

func (suite *KeeperTestSuite) TestMsgVetoStateCommitment() {
	height := types.StateMachineHeight{ID: testsuite.Counterparty, Height: 1}

	testCases := []struct {
		name     string
		msg      *types.MsgVetoStateCommitment
		expError error
	}{
		{
			name:     "success",
			msg:      &types.MsgVetoStateCommitment{Authority: authority, Height: height},
			expError: nil,
		},
		{
			name:     "unauthorized authority",
			msg:      &types.MsgVetoStateCommitment{Authority: "unauthorized", Height: height},
			expError: sdkerrors.ErrUnauthorized,
		},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.SetupTest()
			suite.createClient(time.Hour)

			msgServer := keeper.NewMsgServerImpl(suite.keeper)
			res, err := msgServer.VetoStateCommitment(suite.ctx, tc.msg)

			_, lookupErr := suite.keeper.StateMachineCommitment(suite.ctx, height)
			if tc.expError != nil {
				suite.Require().Nil(res)
				suite.Require().ErrorIs(err, tc.expError)
				suite.Require().NoError(lookupErr)
				return
			}
			suite.Require().NoError(err)
			suite.Require().NotNil(res)
			suite.Require().ErrorIs(lookupErr, types.ErrStateCommitmentNotFound)
		})
	}
}

func (suite *KeeperTestSuite) TestHandleTx() {
	suite.createClient(0)
	suite.ctx = suite.ctx.WithChainID(testChainID)

	key := secp256k1.GenPrivKey()
	datagram := suite.encode(&types.RequestMessage{Requests: []types.PostRequest{incomingRequest(1)}, Proof: mockProof(1)})
	tx, err := types.NewTx(testChainID, key, datagram)
	suite.Require().NoError(err)

	// A signature for another chain is rejected.
	foreign, err := types.NewTx("other-chain", key, datagram)
	suite.Require().NoError(err)
	bz, err := foreign.Marshal()
	suite.Require().NoError(err)
	suite.Require().ErrorIs(suite.keeper.HandleTx(suite.ctx, bz), sdkerrors.ErrUnauthorized)

	// A signer that does not own the key is rejected.
	forged := *tx
	forged.Msg.Signer = sdk.AccAddress(secp256k1.GenPrivKey().PubKey().Address()).String()
	bz, err = forged.Marshal()
	suite.Require().NoError(err)
	suite.Require().ErrorIs(suite.keeper.HandleTx(suite.ctx, bz), sdkerrors.ErrUnauthorized)
	suite.Require().Empty(suite.module.Accepted)

	bz, err = tx.Marshal()
	suite.Require().NoError(err)
	suite.Require().NoError(suite.keeper.HandleTx(suite.ctx, bz))
	suite.Require().Len(suite.module.Accepted, 1)

	req := incomingRequest(1)
	receipt, ok, err := suite.keeper.RequestReceipt(suite.ctx, req.Commitment())
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Require().Equal([]byte(sdk.AccAddress(key.PubKey().Address())), receipt.Relayer)

	suite.Require().ErrorIs(suite.keeper.HandleTx(suite.ctx, bz), types.ErrDuplicateRequest)
	suite.Require().ErrorIs(suite.keeper.HandleTx(suite.ctx, []byte("garbage")), sdkerrors.ErrTxDecode)
}
