package redis

// ViolationsQueue is the list the violation worker drains into Postgres.
const ViolationsQueue = "persist_violations_queue"

func progressKey(competitionID string) string {
	return "progress:" + competitionID
}

func payloadKey(competitionID string) string {
	return "competition:" + competitionID + ":payload"
}

func engineKey(competitionID string) string {
	return "competition:engine:" + competitionID
}
