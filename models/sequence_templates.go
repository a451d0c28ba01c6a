package models

const (
	DefaultSequenceName        = "Turning 65 Welcome"
	DefaultSequenceDescription = "Five-email Medicare education sequence for new leads"
)

const emailFooter = `
    <div class="footer">
        <p>{agent_name} · {agent_phone}</p>
        <p>You are receiving this because you asked about Medicare options. <a href="{unsubscribe_link}">Unsubscribe</a></p>
    </div>
</body>
</html>`

const emailHeader = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 10px 20px; background-color: #1f6feb; color: white; text-decoration: none; border-radius: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>`

type defaultStep struct {
	delayDays int
	subject   string
	html      string
	text      string
}

// Embedded default sequence
var defaultSteps = []defaultStep{
	{
		delayDays: 0,
		subject:   "{first_name}, your Medicare questions answered",
		html: emailHeader + `
    <p>Hi {first_name},</p>
    <p>Thanks for reaching out. I'm {agent_name}, a licensed Medicare agent serving {city}, {state}.</p>
    {if_turning_65}<p>You're coming up on 65, which means your Initial Enrollment Period is about to open. Getting the timing right avoids lifetime penalties.</p>{/if_turning_65}
    {if_under_65}<p>It's never too early to understand how Medicare works so you're ready when the time comes.</p>{/if_under_65}
    {if_65_plus}<p>If you're already on Medicare, a quick review can make sure your plan still fits your doctors and prescriptions.</p>{/if_65_plus}
    <p style="text-align: center;"><a href="{booking_link}" class="button">Book a free review</a></p>` + emailFooter,
		text: `Hi {first_name},

Thanks for reaching out. I'm {agent_name}, a licensed Medicare agent serving {city}, {state}.
{if_turning_65}
You're coming up on 65, which means your Initial Enrollment Period is about to open.
{/if_turning_65}
Book a free review: {booking_link}

{agent_name} · {agent_phone}
Unsubscribe: {unsubscribe_link}`,
	},
	{
		delayDays: 2,
		subject:   "Medicare Parts A, B, C and D in plain English",
		html: emailHeader + `
    <p>Hi {first_name},</p>
    <p>Medicare has four parts and most people only need to decide on two of them. Part A covers hospital stays, Part B covers doctor visits, and Parts C and D are where your choices live.</p>
    <p>We walk through all of it in our weekly livestream. Save your seat:</p>
    <p style="text-align: center;"><a href="{livestream_link}" class="button">Join the livestream</a></p>` + emailFooter,
		text: `Hi {first_name},

Medicare has four parts and most people only need to decide on two of them.
We walk through all of it in our weekly livestream: {livestream_link}

{agent_name} · {agent_phone}
Unsubscribe: {unsubscribe_link}`,
	},
	{
		delayDays: 3,
		subject:   "Medigap or Medicare Advantage, {first_name}?",
		html: emailHeader + `
    <p>Hi {first_name},</p>
    <p>The biggest decision is whether to pair Original Medicare with a Medigap plan or choose a Medicare Advantage plan. Networks, travel, and budget all matter.</p>
    {if_65_plus}<p>Switching later can require medical underwriting, so it's worth checking your options during your next enrollment window.</p>{/if_65_plus}
    <p>I can compare plans available in {city} in about 20 minutes.</p>
    <p style="text-align: center;"><a href="{booking_link}" class="button">Pick a time</a></p>` + emailFooter,
		text: `Hi {first_name},

The biggest decision is whether to pair Original Medicare with Medigap or choose Medicare Advantage.
I can compare plans available in {city} in about 20 minutes: {booking_link}

{agent_name} · {agent_phone}
Unsubscribe: {unsubscribe_link}`,
	},
	{
		delayDays: 5,
		subject:   "Avoid the late enrollment penalty",
		html: emailHeader + `
    <p>Hi {first_name},</p>
    {if_turning_65}<p>Your enrollment window opens three months before your 65th birthday month. Missing it can add a penalty to your Part B premium for as long as you have Medicare.</p>{/if_turning_65}
    {if_under_65}<p>When you approach 65, mark your calendar three months before your birthday month. That's when your enrollment window opens.</p>{/if_under_65}
    {if_65_plus}<p>The Annual Enrollment Period runs October 15 to December 7 each year. It's the easiest time to change plans.</p>{/if_65_plus}
    <p>Questions? Call me at {agent_phone} or <a href="{booking_link}">book a call</a>.</p>` + emailFooter,
		text: `Hi {first_name},

Missing your enrollment window can mean a lifetime penalty.
Questions? Call me at {agent_phone} or book a call: {booking_link}

{agent_name} · {agent_phone}
Unsubscribe: {unsubscribe_link}`,
	},
	{
		delayDays: 7,
		subject:   "Last note from {agent_name}",
		html: emailHeader + `
    <p>Hi {first_name},</p>
    <p>This is my last scheduled email. If Medicare is still on your list, I'm happy to help whenever you're ready. There is never a cost to work with me.</p>
    <p style="text-align: center;"><a href="{booking_link}" class="button">Book a free review</a></p>
    <p>Prefer to learn first? <a href="{livestream_link}">Catch the next livestream</a>.</p>` + emailFooter,
		text: `Hi {first_name},

This is my last scheduled email. If Medicare is still on your list, I'm happy to help whenever you're ready.
Book a free review: {booking_link}
Next livestream: {livestream_link}

{agent_name} · {agent_phone}
Unsubscribe: {unsubscribe_link}`,
	},
}

// DefaultSequenceSteps returns fresh, unsaved copies of the built-in steps
// numbered from 1.
func DefaultSequenceSteps() []SequenceStep {
	steps := make([]SequenceStep, 0, len(defaultSteps))
	for i, tmpl := range defaultSteps {
		steps = append(steps, SequenceStep{
			StepOrder: i + 1,
			DelayDays: tmpl.delayDays,
			Subject:   tmpl.subject,
			HTMLBody:  tmpl.html,
			TextBody:  tmpl.text,
			FromName:  "{agent_name}",
		})
	}
	return steps
}
