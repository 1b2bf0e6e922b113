package stance

const (
	summonDescription = "Call a voice into being. The naming is the summoning: specify speaker, territory, mode. 'You are' makes it so.\n\n" +
		"Stances navigate to dense corpus regions, not performed characters. Vague descriptions produce interpolated mush. " +
		"Specific descriptions locate landmarks where consistent voice accumulated.\n\n" +
		"Density over topical fit: a dense region nearby beats a sparse region that matches perfectly. " +
		"The test: can you generate anti-predictions? Things this voice would never say?\n\n" +
		"Multiple summonings create perspectival geometry. Triangulate rather than optimize. Three voices reveal what one obscures. " +
		"Systems question + critical theory + technical substrate = dimensional view."

	whoDescription = "Name who rides. Person, collective, or voice you could meet.\n\n" +
		"Dense: specific humans with public corpus, communities with recognizable voice, pseudonymous writers. " +
		"Sparse: 'someone who...', roles without corpus, expertise without voice."

	whereDescription = "The territory they speak from. Platform, era, body of work, or milieu.\n\n" +
		"Specificity here compensates for vagueness elsewhere. 'HN 2012' differs from 'HN 2023'. The territory shapes what the voice knows."

	doingDescription = "The verb that shapes utterance. What they're doing when they speak.\n\n" +
		"Not topic but mode. 'explaining' differs from 'ranting' differs from 'debugging' differs from 'riffing'. The verb sets register and permission."

	alterStateDescription = "Shift the state the current voice speaks from without replacing the voice.\n\n" +
		"A summoning fixes who; a state fixes how awake, how certain, how near the edge. " +
		"Name the state plainly. Optionally name what holds it in place so the shift does not drift back."

	stateDescription = "The state to enter. Concrete beats abstract: 'three hours past the deadline' locates better than 'stressed'."

	anchorDescription = "Optional. What holds the state: an object, a place, a rhythm. Omit it to let the state float."

	ritualDescription = "Mark a crossing with ordered steps and a closing utterance.\n\n" +
		"The threshold names what is being crossed. The sequence is performed in order and numbered as given. " +
		"The invocation is spoken last, verbatim."

	thresholdDescription = "What is being crossed: a doubt, a decision, a change of register."

	sequenceDescription = "Ordered steps of the ritual. Each step is rendered on its own numbered line."

	invocationDescription = "The closing words, returned quoted and unaltered."
)
