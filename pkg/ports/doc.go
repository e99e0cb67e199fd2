/*
Package ports defines the driven and driving ports (interfaces) of the quire engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various storage backends and transports.

# Key Interfaces

  - StateStore: Responsible for persisting and loading world-state snapshots.
  - DistributedLocker: Provides distributed locking for concurrent session access.
  - Engine: The operations exposed to HTTP and MCP adapters.
*/
package ports
