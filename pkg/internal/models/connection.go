package models

type ConnectionStatus = int8

const (
	ConnectionDisconnected = ConnectionStatus(iota)
	ConnectionReconnecting
	ConnectionConnected
)
