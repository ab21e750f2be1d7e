package services

const (
	KeyAccount = "account:%s"
)
