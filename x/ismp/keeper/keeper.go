package keeper

import (
	"context"

	"cosmossdk.io/collections"
	corestore "cosmossdk.io/core/store"
	"cosmossdk.io/log"
	"github.com/celestiaorg/ismp/x/ismp/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

var _ types.IsmpHost = (*Keeper)(nil)

// Keeper is the ISMP host of a cosmos-sdk chain. It persists consensus states, finalized state commitments,
// commitments of outgoing datagrams and receipts of incoming datagrams.
type Keeper struct {
	params                  collections.Item[types.Params]
	consensusStates         collections.Map[[]byte, []byte]
	consensusUpdateTimes    collections.Map[[]byte, uint64]
	consensusClientIDs      collections.Map[[]byte, []byte]
	frozen                  collections.KeySet[[]byte]
	unbondingPeriods        collections.Map[[]byte, uint64]
	challengePeriods        collections.Map[string, uint64]
	stateCommitments        collections.Map[[]byte, types.StateCommitment]
	stateMachineUpdateTimes collections.Map[[]byte, uint64]
	latestHeights           collections.Map[string, uint64]
	stateMachineConsensus   collections.Map[string, []byte]
	requestCommitments      collections.Map[[]byte, types.FeeMetadata]
	responseCommitments     collections.Map[[]byte, types.FeeMetadata]
	requestReceipts         collections.Map[[]byte, types.RequestReceipt]
	responseReceipts        collections.Map[[]byte, types.ResponseReceipt]
	responded               collections.KeySet[[]byte]
	nonce                   collections.Sequence
	schema                  collections.Schema

	host      types.StateMachineID
	authority string
	clients   map[types.ConsensusClientID]types.ConsensusClient
	router    *Router
}

// NewKeeper creates and returns a new ismp module Keeper acting as host for the state machine host.
// The authority may create consensus states and veto state commitments.
func NewKeeper(storeService corestore.KVStoreService, host types.StateMachineID, authority string, router *Router, clients ...types.ConsensusClient) *Keeper {
	sb := collections.NewSchemaBuilder(storeService)

	keeper := &Keeper{
		params:                  collections.NewItem(sb, types.ParamsKey, "params", types.RLPValue[types.Params]("params")),
		consensusStates:         collections.NewMap(sb, types.ConsensusStatesPrefix, "consensus_states", collections.BytesKey, collections.BytesValue),
		consensusUpdateTimes:    collections.NewMap(sb, types.ConsensusUpdateTimesPrefix, "consensus_update_times", collections.BytesKey, collections.Uint64Value),
		consensusClientIDs:      collections.NewMap(sb, types.ConsensusClientIDsPrefix, "consensus_client_ids", collections.BytesKey, collections.BytesValue),
		frozen:                  collections.NewKeySet(sb, types.FrozenConsensusPrefix, "frozen", collections.BytesKey),
		unbondingPeriods:        collections.NewMap(sb, types.UnbondingPeriodsPrefix, "unbonding_periods", collections.BytesKey, collections.Uint64Value),
		challengePeriods:        collections.NewMap(sb, types.ChallengePeriodsPrefix, "challenge_periods", collections.StringKey, collections.Uint64Value),
		stateCommitments:        collections.NewMap(sb, types.StateCommitmentsPrefix, "state_commitments", collections.BytesKey, types.RLPValue[types.StateCommitment]("state_commitment")),
		stateMachineUpdateTimes: collections.NewMap(sb, types.StateMachineUpdateTimes, "state_machine_update_times", collections.BytesKey, collections.Uint64Value),
		latestHeights:           collections.NewMap(sb, types.LatestStateMachineHeights, "latest_heights", collections.StringKey, collections.Uint64Value),
		stateMachineConsensus:   collections.NewMap(sb, types.StateMachineConsensusPrefix, "state_machine_consensus", collections.StringKey, collections.BytesValue),
		requestCommitments:      collections.NewMap(sb, types.RequestCommitmentsPrefix, "request_commitments", collections.BytesKey, types.RLPValue[types.FeeMetadata]("fee_metadata")),
		responseCommitments:     collections.NewMap(sb, types.ResponseCommitmentsPrefix, "response_commitments", collections.BytesKey, types.RLPValue[types.FeeMetadata]("fee_metadata")),
		requestReceipts:         collections.NewMap(sb, types.RequestReceiptsPrefix, "request_receipts", collections.BytesKey, types.RLPValue[types.RequestReceipt]("request_receipt")),
		responseReceipts:        collections.NewMap(sb, types.ResponseReceiptsPrefix, "response_receipts", collections.BytesKey, types.RLPValue[types.ResponseReceipt]("response_receipt")),
		responded:               collections.NewKeySet(sb, types.RespondedPrefix, "responded", collections.BytesKey),
		nonce:                   collections.NewSequence(sb, types.NonceKey, "nonce"),

		host:      host,
		authority: authority,
		clients:   make(map[types.ConsensusClientID]types.ConsensusClient, len(clients)),
		router:    router,
	}

	schema, err := sb.Build()
	if err != nil {
		panic(err)
	}
	keeper.schema = schema

	for _, client := range clients {
		if _, ok := keeper.clients[client.ID()]; ok {
			panic("duplicate consensus client " + client.ID().String())
		}
		keeper.clients[client.ID()] = client
	}

	if keeper.router == nil {
		keeper.router = NewRouter()
	}

	return keeper
}

// Logger returns the module logger extracted using the sdk context.
func (k *Keeper) Logger(ctx context.Context) log.Logger {
	return sdk.UnwrapSDKContext(ctx).Logger().With("module", "x/"+types.ModuleName)
}

// GetAuthority returns the module's authority.
func (k *Keeper) GetAuthority() string {
	return k.authority
}

// Router returns the module router dispatching datagrams to application modules.
func (k *Keeper) Router() *Router {
	return k.router
}

// GetParams returns the module params.
func (k *Keeper) GetParams(ctx context.Context) (types.Params, error) {
	params, err := k.params.Get(ctx)
	if err != nil {
		return types.Params{}, err
	}
	return params, nil
}

// SetParams validates and stores the module params.
func (k *Keeper) SetParams(ctx context.Context, params types.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	return k.params.Set(ctx, params)
}
