package dbus

// Standard D-Bus method names
const (
	DBUS_INTERFACE = "org.freedesktop.DBus"

	INTROSPECTABLE   = DBUS_INTERFACE + ".Introspectable"
	BUS_ADD_MATCH    = DBUS_INTERFACE + ".AddMatch"
	BUS_REMOVE_MATCH = DBUS_INTERFACE + ".RemoveMatch"
	DBUS_PROP_IFACE  = DBUS_INTERFACE + ".Properties"
	DBUS_OBJECT_MNGR = DBUS_INTERFACE + ".ObjectManager"

	PROP_GET     = DBUS_PROP_IFACE + ".Get"
	PROP_SET     = DBUS_PROP_IFACE + ".Set"
	PROP_GET_ALL = DBUS_PROP_IFACE + ".GetAll"

	PROP_CHANGED_MEMBER = "PropertiesChanged"
	PROP_CHANGED_SIGNAL = DBUS_PROP_IFACE + "." + PROP_CHANGED_MEMBER

	MANAGED_OBJECTS = DBUS_OBJECT_MNGR + ".GetManagedObjects"
)
