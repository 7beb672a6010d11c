package client

// CLOB REST endpoints.
const (
	EndpointTime = "/time"

	EndpointCreateAPIKey = "/auth/api-key"
	EndpointDeriveAPIKey = "/auth/derive-api-key"

	EndpointPostOrder     = "/order"
	EndpointCancelOrder   = "/order"
	EndpointGetOpenOrders = "/data/orders"
)
