package protocol

// Info texts exchanged between server and client. The client matches
// TextRegistrationFailed literally, so it is part of the wire contract.
const (
	TextJoined             = "Connection to the Message Board Server is successful!"
	TextAlreadyJoined      = "You are already connected to the server."
	TextLeft               = "Connection closed. Thank you!"
	TextNotJoined          = "Error: Disconnection failed. Please connect to the server first."
	TextConnectFirst       = "Error: Please connect to the server first."
	TextRegistrationFailed = "Error: Registration failed. Handle or alias already exists."
	TextCannotChangeHandle = "Error: You have already registered with a handle. You cannot change your handle."
	TextRegisterFirst      = "Error: You must register before sending a message."
	TextHandleNotFound     = "Error: Handle or alias not found."
	TextMessageTooLong     = "Error: Message is too long to deliver."

	UsageJoin     = "Error: Invalid input. Usage: /join <server_ip_add> <port>"
	UsageLeave    = "Error: Invalid input. Usage: /leave"
	UsageRegister = "Error: Invalid input. Usage: /register <handle>"
	UsageAll      = "Error: Invalid input. Usage: /all <message>"
	UsageMsg      = "Error: Invalid input. Usage: /msg <handle> <message>"
)

// Welcome returns the Info text confirming a registration.
func Welcome(handle string) string {
	return "Welcome " + handle + "!"
}
