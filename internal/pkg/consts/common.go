package consts

const (
	RoleAdmin    = "ADMIN"
	RoleStylist  = "STYLIST"
	RoleStaff    = "STAFF"
	RoleCustomer = "CUSTOMER"
)

const (
	// PublishSourceStore 写库后直接发布
	PublishSourceStore = "store"
	// PublishSourceCanal 经 canal binlog 转发
	PublishSourceCanal = "canal"
)

const (
	DefaultAvatarURL = "default_avatar.png"
)
