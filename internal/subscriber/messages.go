package subscriber

import "time"

// Payload shapes of the Buildbot data API messages the exporter consumes.
// Numeric ids are decoded into strings since they only ever become labels.

type builderMessage struct {
	BuilderID string `mapstructure:"builderid"`
	Name      string `mapstructure:"name"`
}

type workerMessage struct {
	WorkerID string `mapstructure:"workerid"`
	Name     string `mapstructure:"name"`
}

type buildMessage struct {
	BuildID    string    `mapstructure:"buildid"`
	BuilderID  string    `mapstructure:"builderid"`
	WorkerID   string    `mapstructure:"workerid"`
	StartedAt  time.Time `mapstructure:"started_at"`
	CompleteAt time.Time `mapstructure:"complete_at"`
	Results    *int      `mapstructure:"results"`
}

type buildRequestMessage struct {
	BuildRequestID string    `mapstructure:"buildrequestid"`
	BuilderID      string    `mapstructure:"builderid"`
	BuildSetID     string    `mapstructure:"buildsetid"`
	SubmittedAt    time.Time `mapstructure:"submitted_at"`
	CompleteAt     time.Time `mapstructure:"complete_at"`
	Results        *int      `mapstructure:"results"`
}

type buildSetMessage struct {
	BuildSetID  string    `mapstructure:"bsid"`
	SubmittedAt time.Time `mapstructure:"submitted_at"`
	CompleteAt  time.Time `mapstructure:"complete_at"`
	Results     *int      `mapstructure:"results"`
}

type stepMessage struct {
	StepID     string    `mapstructure:"stepid"`
	BuildID    string    `mapstructure:"buildid"`
	Number     string    `mapstructure:"number"`
	Name       string    `mapstructure:"name"`
	BuilderID  string    `mapstructure:"builderid"`
	WorkerID   string    `mapstructure:"workerid"`
	StartedAt  time.Time `mapstructure:"started_at"`
	CompleteAt time.Time `mapstructure:"complete_at"`
	Results    *int      `mapstructure:"results"`
}
