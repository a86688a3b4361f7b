package ismp

import (
	"context"
	"encoding/json"
	"fmt"

	"cosmossdk.io/core/appmodule"
	"github.com/celestiaorg/ismp/x/ismp/keeper"
	"github.com/celestiaorg/ismp/x/ismp/types"
)

var _ appmodule.AppModule = AppModule{}

// ConsensusVersion defines the current module consensus version.
const ConsensusVersion = 1

// AppModule defines the ismp module.
type AppModule struct {
	keeper *keeper.Keeper
}

// NewAppModule creates a new ismp AppModule.
func NewAppModule(keeper *keeper.Keeper) AppModule {
	return AppModule{
		keeper: keeper,
	}
}

// IsAppModule implements the appmodule.AppModule interface.
func (am AppModule) IsAppModule() {}

// IsOnePerModuleType implements the depinject.OnePerModuleType interface.
func (am AppModule) IsOnePerModuleType() {}

// Name returns the ismp module's name.
func (AppModule) Name() string { return types.ModuleName }

// ConsensusVersion implements AppModule/ConsensusVersion.
func (AppModule) ConsensusVersion() uint64 { return ConsensusVersion }

// DefaultGenesis returns default genesis state as raw bytes for the module.
func (AppModule) DefaultGenesis() json.RawMessage {
	bz, err := json.Marshal(types.DefaultGenesis())
	if err != nil {
		panic(err)
	}
	return bz
}

// ValidateGenesis performs genesis state validation for the ismp module.
func (AppModule) ValidateGenesis(data json.RawMessage) error {
	var genesisState types.GenesisState
	if err := json.Unmarshal(data, &genesisState); err != nil {
		return fmt.Errorf("failed to unmarshal %s genesis state: %w", types.ModuleName, err)
	}
	return genesisState.Validate()
}

// InitGenesis performs genesis initialization for the ismp module.
func (am AppModule) InitGenesis(ctx context.Context, data json.RawMessage) error {
	var genesisState types.GenesisState
	if err := json.Unmarshal(data, &genesisState); err != nil {
		return fmt.Errorf("failed to unmarshal %s genesis state: %w", types.ModuleName, err)
	}

	if err := am.keeper.InitGenesis(ctx, &genesisState); err != nil {
		return fmt.Errorf("failed to initialize %s genesis state: %w", types.ModuleName, err)
	}
	return nil
}

// ExportGenesis returns the exported genesis.
func (am AppModule) ExportGenesis(ctx context.Context) (json.RawMessage, error) {
	genesisState, err := am.keeper.ExportGenesis(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export %s genesis state: %w", types.ModuleName, err)
	}

	return json.Marshal(genesisState)
}
