package subscription

// Replies holds the user-facing texts. Empty fields fall back to DefaultReplies.
type Replies struct {
	Welcome           string
	AlreadySubscribed string
	Unsubscribed      string
	Help              string
}

func DefaultReplies() Replies {
	return Replies{
		Welcome:           "Thank you for signing up for your daily dose of dad jokes. You'll receive one joke every weekday. To opt out at any time, reply with STOP.",
		AlreadySubscribed: "You're already signed up to receive daily dad jokes.",
		Unsubscribed:      "You've been unsubscribed and will receive no more dad jokes. Reply DAD to sign up again.",
		Help:              "Dad Jokez: If you would like to receive an automated joke once a day, reply DAD. To stop receiving messages completely, reply STOP.",
	}
}

func (r Replies) withDefaults() Replies {
	d := DefaultReplies()
	if r.Welcome == "" {
		r.Welcome = d.Welcome
	}
	if r.AlreadySubscribed == "" {
		r.AlreadySubscribed = d.AlreadySubscribed
	}
	if r.Unsubscribed == "" {
		r.Unsubscribed = d.Unsubscribed
	}
	if r.Help == "" {
		r.Help = d.Help
	}
	return r
}
