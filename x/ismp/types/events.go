package types

const (
	EventTypeRequest                = "ismp_request"
	EventTypeGetRequest             = "ismp_get_request"
	EventTypeResponse               = "ismp_response"
	EventTypeStateMachineUpdated    = "ismp_state_machine_updated"
	EventTypePostRequestHandled     = "ismp_post_request_handled"
	EventTypePostResponseHandled    = "ismp_post_response_handled"
	EventTypeGetRequestHandled      = "ismp_get_request_handled"
	EventTypeRequestTimeoutHandled  = "ismp_request_timeout_handled"
	EventTypeResponseTimeoutHandled = "ismp_response_timeout_handled"
	EventTypeConsensusClientCreated = "ismp_consensus_client_created"
	EventTypeConsensusClientFrozen  = "ismp_consensus_client_frozen"
	EventTypeStateMachineVetoed     = "ismp_state_machine_vetoed"

	AttributeKeyCommitment        = "commitment"
	AttributeKeyRelayer           = "relayer"
	AttributeKeySource            = "source"
	AttributeKeyDest              = "dest"
	AttributeKeyNonce             = "nonce"
	AttributeKeyStateMachineID    = "state_machine_id"
	AttributeKeyLatestHeight      = "latest_height"
	AttributeKeyConsensusStateID  = "consensus_state_id"
	AttributeKeyConsensusClientID = "consensus_client_id"
	AttributeKeyRequest           = "request_commitment"
	AttributeKeyHeight            = "height"
)
