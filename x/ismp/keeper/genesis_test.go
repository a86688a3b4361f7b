package keeper_test

import (
	"encoding/json"

	"cosmossdk.io/math"
	"github.com/celestiaorg/ismp/x/ismp/testsuite"
	"github.com/celestiaorg/ismp/x/ismp/types"
)

func (suite *KeeperTestSuite) TestInitGenesis() {
	proxy := testsuite.Counterparty
	genesisState := types.GenesisState{
		Params: types.NewParams(&proxy),
		Nonce:  42,
	}

	err := suite.keeper.InitGenesis(suite.ctx, &genesisState)
	suite.Require().NoError(err)

	allowed, ok, err := suite.keeper.AllowedProxy(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().True(ok)
	suite.Require().Equal(proxy, allowed)

	req := &types.PostRequest{Dest: testsuite.Counterparty, From: testsuite.ModuleID, To: testsuite.ModuleID}
	_, err = suite.keeper.DispatchRequest(suite.ctx, req, types.FeeMetadata{Fee: math.ZeroInt()})
	suite.Require().NoError(err)
	suite.Require().Equal(uint64(42), req.Nonce)
}

func (suite *KeeperTestSuite) TestInitGenesisInvalidParams() {
	invalid := types.StateMachineID{}
	err := suite.keeper.InitGenesis(suite.ctx, &types.GenesisState{Params: types.NewParams(&invalid)})
	suite.Require().ErrorIs(err, types.ErrInvalidParams)
}

func (suite *KeeperTestSuite) TestExportGenesis() {
	for range 3 {
		req := &types.PostRequest{Dest: testsuite.Counterparty, From: testsuite.ModuleID, To: testsuite.ModuleID}
		_, err := suite.keeper.DispatchRequest(suite.ctx, req, types.FeeMetadata{Fee: math.ZeroInt()})
		suite.Require().NoError(err)
	}

	genesisState, err := suite.keeper.ExportGenesis(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Equal(types.DefaultParams(), genesisState.Params)
	suite.Require().Equal(uint64(3), genesisState.Nonce)
}

func (suite *KeeperTestSuite) TestGenesisRestoresHostState() {
	suite.createClient(0)

	incoming := &types.RequestMessage{
		Requests: []types.PostRequest{incomingRequest(1)},
		Proof:    mockProof(1),
		Signer:   []byte("relayer"),
	}
	suite.Require().NoError(suite.keeper.HandleMessage(suite.ctx, incoming))
	suite.Require().Len(suite.module.Accepted, 1)

	outgoing := &types.PostRequest{Dest: testsuite.Counterparty, From: testsuite.ModuleID, To: testsuite.ModuleID}
	outHash, err := suite.keeper.DispatchRequest(suite.ctx, outgoing, testFee)
	suite.Require().NoError(err)

	exported, err := suite.keeper.ExportGenesis(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Len(exported.ConsensusStates, 1)
	suite.Require().Len(exported.StateCommitments, 1)
	suite.Require().Len(exported.RequestReceipts, 1)
	suite.Require().Len(exported.RequestCommitments, 1)

	bz, err := json.Marshal(exported)
	suite.Require().NoError(err)
	var imported types.GenesisState
	suite.Require().NoError(json.Unmarshal(bz, &imported))

	ctx, k, module := suite.newKeeper()
	suite.Require().NoError(k.InitGenesis(ctx, &imported))

	// The receipt survives the restart, so the request cannot be executed twice.
	err = k.HandleMessage(ctx, incoming)
	suite.Require().ErrorIs(err, types.ErrDuplicateRequest)
	suite.Require().Empty(module.Accepted)

	meta, err := k.RequestCommitment(ctx, outHash)
	suite.Require().NoError(err)
	suite.Require().Equal(testFee.Payer, meta.Payer)
	suite.Require().True(testFee.Fee.Equal(meta.Fee))

	reexported, err := k.ExportGenesis(ctx)
	suite.Require().NoError(err)
	rebz, err := json.Marshal(reexported)
	suite.Require().NoError(err)
	suite.Require().JSONEq(string(bz), string(rebz))
}

func (suite *KeeperTestSuite) TestInitGenesisInvalidState() {
	id := types.NewConsensusStateID("MOCK")
	genesisState := types.DefaultGenesis()
	genesisState.ConsensusStates = []types.GenesisConsensusState{{ID: id}, {ID: id}}
	suite.Require().ErrorIs(suite.keeper.InitGenesis(suite.ctx, genesisState), types.ErrInvalidGenesis)

	genesisState = types.DefaultGenesis()
	genesisState.StateMachineConsensus = []types.GenesisStateMachineConsensus{{ID: testsuite.Counterparty, ConsensusStateID: id}}
	suite.Require().ErrorIs(suite.keeper.InitGenesis(suite.ctx, genesisState), types.ErrInvalidGenesis)
}
