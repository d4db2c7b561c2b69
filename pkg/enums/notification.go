package enums

type NotificationType string

const (
	NotificationTypeManualPaymentProof NotificationType = "manual_payment_proof"
	NotificationTypeSystem             NotificationType = "system"
)

var notificationTypes = members[NotificationType]{NotificationTypeManualPaymentProof, NotificationTypeSystem}

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }
