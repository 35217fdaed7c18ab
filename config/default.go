package config

// DefaultValues is the default configuration
const DefaultValues = `
[Log]
Environment = "development"
Level = "debug"
Outputs = ["stdout"]

[SyncDB]
Database = "postgres"
User = "test_user"
Password = "test_password"
Name = "test_db"
Host = "omnibridge-db"
Port = "5432"
MaxConns = 20

[Watcher]
SyncInterval = "5s"
SyncChunkSize = 100

[Scheduler]
SweepInterval = "10s"
RetryCap = 10
RetryBackoff = "5s"
RetryBackoffMax = "10m"
InfraRetryInterval = "15s"
DispatchTimeout = "5m"
QueueSize = 128
SweepLimit = 100

[Submitter]
QueueSize = 32
OutcomePollInterval = "5s"
OutcomeTimeout = "3m"

[Metrics]
Enabled = true
Port = "9090"
Env = "dev"

[BridgeServer]
Port = "8080"
ReadTimeout = "10s"
WriteTimeout = "10s"
MaxPageSize = 100
`
