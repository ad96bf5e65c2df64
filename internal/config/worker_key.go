package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	PersistActivityQueue   string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	PersistActivityQueue:   "persist_activity_queue",
}
