package enum

type EntityType string

const (
	ACCOUNT          EntityType = "ACCOUNT"
	EMAIL            EntityType = "EMAIL"
	EMAIL_ATTACHMENT EntityType = "EMAIL_ATTACHMENT"
)

func (entityType EntityType) String() string {
	return string(entityType)
}
